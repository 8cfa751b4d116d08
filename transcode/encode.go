// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package transcode

import (
	"fmt"
	"sort"
	"time"

	"github.com/juju/errors"

	"github.com/juju/awscore/schema"
)

// Options alters how the generic traversal applies container
// encodings.
type Options struct {
	// FlattenAll forces the flat realization of every sequence and
	// map container, ignoring declared wrappers. The EC2-style query
	// protocol requires this.
	FlattenAll bool
}

// Encode walks the body-located members of v in declared order and
// builds the intermediate tree. Header, URI and query-string members
// are the request builder's business and are skipped here; the
// payload member, when one is declared, bypasses this traversal
// entirely.
func Encode(v *schema.Struct) (*Object, error) {
	return EncodeWith(v, Options{})
}

// EncodeWith is Encode with explicit options.
func EncodeWith(v *schema.Struct, opts Options) (*Object, error) {
	return encodeStruct(v, "", opts)
}

func encodeStruct(v *schema.Struct, path string, opts Options) (*Object, error) {
	obj := NewObject()
	for _, m := range v.Type().Members() {
		switch m.Location {
		case schema.BodyLocation, schema.XMLAttributeLocation:
		default:
			continue
		}
		raw, ok := v.Get(m.Name)
		if !ok {
			continue
		}
		fieldPath := childPath(path, m.Name)
		if m.Location == schema.XMLAttributeLocation {
			s, err := scalarWireString(m.Type, raw, fieldPath)
			if err != nil {
				return nil, errors.Trace(err)
			}
			obj.SetAttr(m.WireName, s)
			continue
		}
		switch t := m.Type.(type) {
		case schema.ListType:
			if err := encodeList(obj, m.WireName, m.ContainerOrDefault(), t, raw, fieldPath, opts); err != nil {
				return nil, errors.Trace(err)
			}
		case schema.MapType:
			if err := encodeMap(obj, m.WireName, m.ContainerOrDefault(), t, raw, fieldPath, opts); err != nil {
				return nil, errors.Trace(err)
			}
		default:
			n, err := encodeValue(m.Type, raw, fieldPath, opts)
			if err != nil {
				return nil, errors.Trace(err)
			}
			obj.Add(m.WireName, n)
		}
	}
	return obj, nil
}

// encodeValue renders a single value of type t. Sequence and map
// values reached here sit inside another container and take the
// default container encoding; top-level members go through
// encodeList/encodeMap with their declared policy instead.
func encodeValue(t schema.Type, v any, path string, opts Options) (Node, error) {
	switch t := t.(type) {
	case *schema.StructType:
		sv, ok := v.(*schema.Struct)
		if !ok {
			return nil, encodeErrorf(path, "expected a %q shape value, got %T", t.Name, v)
		}
		return encodeStruct(sv, path, opts)
	case schema.ListType:
		wrap := NewObject()
		if err := encodeList(wrap, "item", schema.DefaultContainer{}, t, v, path, opts); err != nil {
			return nil, errors.Trace(err)
		}
		n, _ := wrap.First("item")
		return n, nil
	case schema.MapType:
		wrap := NewObject()
		if err := encodeMap(wrap, "item", schema.DefaultContainer{}, t, v, path, opts); err != nil {
			return nil, errors.Trace(err)
		}
		n, _ := wrap.First("item")
		return n, nil
	default:
		nv, err := normalizeScalar(t, v, path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return &Scalar{Value: nv}, nil
	}
}

// encodeList renders a sequence member. An empty sequence produces an
// empty Array, which the flat textual realizers (query, XML) render as
// nothing at all: the wire formats have no representation for an empty
// flat sequence, so empty and unset are indistinguishable after a
// round trip and decode back as absent.
func encodeList(parent *Object, wire string, ct schema.Container, t schema.ListType, raw any, path string, opts Options) error {
	items, ok := raw.([]any)
	if !ok {
		return encodeErrorf(path, "expected a sequence value, got %T", raw)
	}
	arr := &Array{}
	for i, item := range items {
		n, err := encodeValue(t.Elem, item, fmt.Sprintf("%s.%d", path, i+1), opts)
		if err != nil {
			return errors.Trace(err)
		}
		arr.Items = append(arr.Items, n)
	}
	if opts.FlattenAll {
		ct = schema.FlatListContainer{}
	}
	switch ct := ct.(type) {
	case schema.DefaultContainer, schema.FlatListContainer:
		parent.Add(wire, arr)
	case schema.ListContainer:
		parent.Add(wire, NewObject().Add(ct.Member, arr))
	default:
		return encodeErrorf(path, "container encoding %T cannot apply to a sequence member", ct)
	}
	return nil
}

// encodeMap renders a map member. Empty maps share the empty-sequence
// behavior documented on encodeList: nothing on the wire, absent after
// a round trip.
func encodeMap(parent *Object, wire string, ct schema.Container, t schema.MapType, raw any, path string, opts Options) error {
	m, ok := raw.(map[string]any)
	if !ok {
		return encodeErrorf(path, "expected a map value, got %T", raw)
	}
	if opts.FlattenAll {
		switch c := ct.(type) {
		case schema.MapContainer:
			ct = schema.FlatMapContainer{Key: c.Key, Value: c.Value}
		}
	}
	keyName, valueName := "key", "value"
	var entryName string
	switch ct := ct.(type) {
	case schema.DefaultContainer:
	case schema.FlatMapContainer:
		keyName, valueName = ct.Key, ct.Value
	case schema.MapContainer:
		keyName, valueName, entryName = ct.Key, ct.Value, ct.Entry
	default:
		return encodeErrorf(path, "container encoding %T cannot apply to a map member", ct)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	keyType, isEnumKey := t.Key.(schema.EnumType)
	pairs := &Array{}
	for _, k := range keys {
		if isEnumKey && !keyType.Integer() && !keyType.ValidString(k) {
			return encodeErrorf(path, "%q is not a permitted value of enum %q", k, keyType.Name)
		}
		vn, err := encodeValue(t.Value, m[k], childPath(path, k), opts)
		if err != nil {
			return errors.Trace(err)
		}
		pair := NewObject()
		pair.Add(keyName, &Scalar{Value: k})
		pair.Add(valueName, vn)
		pairs.Items = append(pairs.Items, pair)
	}

	if entryName == "" {
		parent.Add(wire, pairs)
	} else {
		parent.Add(wire, NewObject().Add(entryName, pairs))
	}
	return nil
}

// normalizeScalar checks v against its declared scalar type and
// returns the canonical in-tree representation.
func normalizeScalar(t schema.Type, v any, path string) (any, error) {
	switch t := t.(type) {
	case schema.ScalarType:
		switch t.K {
		case schema.BoolKind:
			if b, ok := v.(bool); ok {
				return b, nil
			}
		case schema.IntKind:
			switch i := v.(type) {
			case int64:
				return i, nil
			case int:
				return int64(i), nil
			case int32:
				return int64(i), nil
			}
		case schema.FloatKind:
			switch f := v.(type) {
			case float64:
				return f, nil
			case float32:
				return float64(f), nil
			}
		case schema.StringKind:
			if s, ok := v.(string); ok {
				return s, nil
			}
		}
		return nil, encodeErrorf(path, "value %v (%T) does not match its declared scalar kind", v, v)
	case schema.EnumType:
		if t.Integer() {
			i, ok := v.(int64)
			if !ok {
				return nil, encodeErrorf(path, "integer enum value expected, got %T", v)
			}
			if !t.ValidInt(i) {
				return nil, encodeErrorf(path, "%d is not a permitted value of enum %q", i, t.Name)
			}
			return i, nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, encodeErrorf(path, "enum value expected, got %T", v)
		}
		if !t.ValidString(s) {
			return nil, encodeErrorf(path, "%q is not a permitted value of enum %q", s, t.Name)
		}
		return s, nil
	case schema.TimestampType:
		ts, ok := v.(time.Time)
		if !ok {
			return nil, encodeErrorf(path, "timestamp value expected, got %T", v)
		}
		return ts, nil
	case schema.BlobType:
		b, ok := v.([]byte)
		if !ok {
			return nil, encodeErrorf(path, "binary value expected, got %T", v)
		}
		return b, nil
	}
	return nil, encodeErrorf(path, "unsupported scalar type %T", t)
}

func childPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func encodeErrorf(path, format string, args ...any) error {
	return &EncodeError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// EncodeError reports a shape value that cannot be rendered to the
// wire. It names the dotted logical field path.
type EncodeError struct {
	Path    string
	Message string
}

// Error is part of the error interface.
func (e *EncodeError) Error() string {
	return fmt.Sprintf("cannot encode field %q: %s", e.Path, e.Message)
}
