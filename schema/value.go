// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package schema

// Struct is a dynamic shape value: a descriptor plus the field values
// set on it. Generated service bindings construct these from native
// structs; the transcoder only ever sees this representation, so no
// runtime type introspection is needed anywhere in the pipeline.
//
// Field values use the following Go types per kind: bool, int64,
// float64, string, time.Time, []byte, *Struct, []any and
// map[string]any. Enum values are carried as their raw wire string,
// or int64 for integer enumerations.
type Struct struct {
	typ    *StructType
	fields map[string]any
}

// NewStruct returns an empty value of the given shape type.
func NewStruct(t *StructType) *Struct {
	return &Struct{
		typ:    t,
		fields: make(map[string]any),
	}
}

// Type returns the value's shape descriptor.
func (s *Struct) Type() *StructType {
	return s.typ
}

// Set assigns a field value and returns the receiver for chaining.
// Fields not declared in the descriptor table may be set; the
// transcoder visits declared members only, so they never reach the
// wire.
func (s *Struct) Set(name string, v any) *Struct {
	s.fields[name] = v
	return s
}

// Get returns the named field value and whether it has been set.
func (s *Struct) Get(name string) (any, bool) {
	v, ok := s.fields[name]
	return v, ok
}

// Len returns the number of set fields.
func (s *Struct) Len() int {
	return len(s.fields)
}

// Fields returns the underlying field map. Shared for comparison in
// tests; callers must not mutate it.
func (s *Struct) Fields() map[string]any {
	return s.fields
}
