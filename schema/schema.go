// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package schema describes the wire shape of service request and
// response values. A shape type declares an ordered set of members,
// each carrying a logical name, a wire name, a location and a
// container encoding. The descriptor tables built here are immutable
// schema data, constructed once when a service definition is loaded
// and shared by every call thereafter.
package schema

import (
	"fmt"

	"github.com/juju/collections/set"
)

// Kind identifies the semantic type of a value.
type Kind int

const (
	InvalidKind Kind = iota
	BoolKind
	IntKind
	FloatKind
	StringKind
	EnumKind
	TimestampKind
	BlobKind
	StructKind
	ListKind
	MapKind
)

// Type is the closed set of value types a service schema can declare.
type Type interface {
	Kind() Kind
}

// ScalarType covers booleans, fixed-width integers, floating point
// values and strings. Bits records the declared width for numeric
// kinds (8, 16, 32 or 64).
type ScalarType struct {
	K    Kind
	Bits int
}

// Kind is part of the Type interface.
func (t ScalarType) Kind() Kind { return t.K }

var (
	BoolType    = ScalarType{K: BoolKind}
	StringType  = ScalarType{K: StringKind}
	Int8Type    = ScalarType{K: IntKind, Bits: 8}
	Int16Type   = ScalarType{K: IntKind, Bits: 16}
	Int32Type   = ScalarType{K: IntKind, Bits: 32}
	Int64Type   = ScalarType{K: IntKind, Bits: 64}
	Float32Type = ScalarType{K: FloatKind, Bits: 32}
	Float64Type = ScalarType{K: FloatKind, Bits: 64}
)

// EnumType declares an enumeration whose raw wire values are either
// strings or integers. In-memory enum values are carried as the raw
// wire value itself, never as a language-level identifier.
type EnumType struct {
	Name      string
	Values    []string
	IntValues []int64
}

// Kind is part of the Type interface.
func (t EnumType) Kind() Kind { return EnumKind }

// Integer reports whether the enumeration uses integer raw values.
func (t EnumType) Integer() bool { return len(t.IntValues) > 0 }

// ValidString reports whether s is a declared wire value.
func (t EnumType) ValidString(s string) bool {
	for _, v := range t.Values {
		if v == s {
			return true
		}
	}
	return false
}

// ValidInt reports whether i is a declared raw value.
func (t EnumType) ValidInt(i int64) bool {
	for _, v := range t.IntValues {
		if v == i {
			return true
		}
	}
	return false
}

// TimestampFormat selects the wire rendering of a timestamp member.
type TimestampFormat int

const (
	// DefaultFormat defers to the wire format's own default: ISO8601
	// for query and XML bodies, epoch seconds for JSON bodies.
	DefaultFormat TimestampFormat = iota
	ISO8601
	HTTPDate
	UnixEpoch
)

// TimestampType declares a point-in-time member.
type TimestampType struct {
	Format TimestampFormat
}

// Kind is part of the Type interface.
func (t TimestampType) Kind() Kind { return TimestampKind }

// BlobType declares an opaque binary member, rendered as base64 text
// in textual wire formats.
type BlobType struct{}

// Kind is part of the Type interface.
func (t BlobType) Kind() Kind { return BlobKind }

// ListType declares an ordered sequence of Elem values.
type ListType struct {
	Elem Type
}

// Kind is part of the Type interface.
func (t ListType) Kind() Kind { return ListKind }

// MapType declares an associative container. Key must be StringType
// or an EnumType; enum keys encode using their raw wire value.
type MapType struct {
	Key   Type
	Value Type
}

// Kind is part of the Type interface.
func (t MapType) Kind() Kind { return MapKind }

// Location declares where a member travels in a wire request or
// response.
type Location int

const (
	// BodyLocation is the default for members absent from a table.
	BodyLocation Location = iota
	HeaderLocation
	URILocation
	QueryLocation
	PayloadLocation
	// XMLAttributeLocation renders the member as an attribute of its
	// parent element rather than a child element. Only meaningful for
	// the XML wire format; other formats treat it as body.
	XMLAttributeLocation
)

// Member is one entry of a shape's encoding table.
type Member struct {
	Name      string
	WireName  string
	Type      Type
	Location  Location
	Container Container
	Required  bool
}

// ContainerOrDefault returns the member's declared container
// encoding, or DefaultContainer when none was declared.
func (m Member) ContainerOrDefault() Container {
	if m.Container == nil {
		return DefaultContainer{}
	}
	return m.Container
}

// StructType is the immutable descriptor for one shape type: its
// ordered member encoding table plus shape-level wire options.
type StructType struct {
	Name         string
	XMLNamespace string

	// Payload names the member whose value is the sole carrier of
	// the request or response body. Empty when the whole shape is
	// body-encoded member by member.
	Payload string

	// Validator runs before a value of this shape is encoded into a
	// request. A nil validator accepts every value.
	Validator func(*Struct) error

	members []Member
	byName  map[string]int
}

// Kind is part of the Type interface.
func (t *StructType) Kind() Kind { return StructKind }

// NewStructType builds the descriptor table for a shape. Wire names
// must be unique within the shape; a duplicate is a schema defect and
// panics, since tables are built from static service data at program
// start.
func NewStructType(name string, members ...Member) *StructType {
	st := &StructType{
		Name:    name,
		members: members,
		byName:  make(map[string]int, len(members)),
	}
	wires := set.NewStrings()
	for i, m := range members {
		if _, ok := st.byName[m.Name]; ok {
			panic(fmt.Sprintf("schema: shape %q declares member %q twice", name, m.Name))
		}
		if wires.Contains(m.WireName) {
			panic(fmt.Sprintf("schema: shape %q declares wire name %q twice", name, m.WireName))
		}
		wires.Add(m.WireName)
		st.byName[m.Name] = i
	}
	return st
}

// WithPayload declares the payload member and returns the receiver
// for declaration-site chaining.
func (t *StructType) WithPayload(member string) *StructType {
	t.Payload = member
	return t
}

// WithNamespace declares the XML namespace attached to the shape's
// payload root element.
func (t *StructType) WithNamespace(ns string) *StructType {
	t.XMLNamespace = ns
	return t
}

// WithValidator attaches the shape's validation predicate.
func (t *StructType) WithValidator(fn func(*Struct) error) *StructType {
	t.Validator = fn
	return t
}

// Members returns the ordered member encoding table.
func (t *StructType) Members() []Member {
	return t.members
}

// Member looks up a member by logical name.
func (t *StructType) Member(name string) (Member, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Member{}, false
	}
	return t.members[i], true
}

// LocationOf returns the wire location of the named member. A member
// absent from the table defaults to the body.
func (t *StructType) LocationOf(name string) Location {
	m, ok := t.Member(name)
	if !ok {
		return BodyLocation
	}
	return m.Location
}

// ContainerOf returns the container encoding of the named member. A
// member absent from the table defaults to DefaultContainer.
func (t *StructType) ContainerOf(name string) Container {
	m, ok := t.Member(name)
	if !ok {
		return DefaultContainer{}
	}
	return m.ContainerOrDefault()
}

// PayloadMember resolves the declared payload member. The second
// result is false when no payload member is declared, or when the
// declared name does not match any member; the latter is a caller
// configuration defect which the request builder reports when it
// first resolves the payload.
func (t *StructType) PayloadMember() (Member, bool) {
	if t.Payload == "" {
		return Member{}, false
	}
	return t.Member(t.Payload)
}

// Validate runs the shape's validation predicate against v.
func (t *StructType) Validate(v *Struct) error {
	if t.Validator == nil {
		return nil
	}
	return t.Validator(v)
}
