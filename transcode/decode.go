// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package transcode

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/juju/errors"

	"github.com/juju/awscore/schema"
)

// DecodeError reports a wire tree that cannot be rebuilt into its
// declared shape: a missing required field, an unknown enum value, a
// type conversion failure. Decoding a fixed response is
// deterministic, so these are never retried.
type DecodeError struct {
	// Path is the dotted logical path of the offending field.
	Path    string
	Message string
}

// Error is part of the error interface.
func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("cannot decode response: %s", e.Message)
	}
	return fmt.Sprintf("cannot decode field %q: %s", e.Path, e.Message)
}

// IsDecodeError reports whether err is a decoding failure.
func IsDecodeError(err error) bool {
	var e *DecodeError
	return errors.As(err, &e)
}

func decodeErrorf(path, format string, args ...any) error {
	return &DecodeError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// Decode rebuilds a shape value from a wire tree. Every declared
// member is located at the position its container encoding dictates;
// the traversal is total on well-formed trees and fails fast on
// malformed ones, never accepting a tree partially.
func Decode(st *schema.StructType, tree *Object) (*schema.Struct, error) {
	return DecodeWith(st, tree, Options{})
}

// DecodeWith is Decode with explicit options.
func DecodeWith(st *schema.StructType, tree *Object, opts Options) (*schema.Struct, error) {
	return decodeStruct(st, tree, "", opts)
}

func decodeStruct(st *schema.StructType, tree *Object, path string, opts Options) (*schema.Struct, error) {
	out := schema.NewStruct(st)
	for _, m := range st.Members() {
		switch m.Location {
		case schema.BodyLocation, schema.HeaderLocation, schema.PayloadLocation, schema.XMLAttributeLocation:
			// Header-located output members are folded into the tree
			// by the response validator before decode, and a payload
			// member arrives wrapped under its wire name the same way.
		default:
			continue
		}
		fieldPath := childPath(path, m.Name)
		if m.Location == schema.XMLAttributeLocation {
			if raw, ok := tree.Attr(m.WireName); ok {
				v, err := decodeScalar(m.Type, raw, fieldPath)
				if err != nil {
					return nil, errors.Trace(err)
				}
				out.Set(m.Name, v)
			} else if m.Required {
				return nil, decodeErrorf(fieldPath, "missing required field")
			}
			continue
		}

		nodes := tree.Values(m.WireName)
		if len(nodes) == 0 {
			if m.Required {
				return nil, decodeErrorf(fieldPath, "missing required field")
			}
			continue
		}

		switch t := m.Type.(type) {
		case schema.ListType:
			v, err := decodeList(nodes, m.ContainerOrDefault(), t, fieldPath, opts)
			if err != nil {
				return nil, errors.Trace(err)
			}
			out.Set(m.Name, v)
		case schema.MapType:
			v, err := decodeMap(nodes, m.ContainerOrDefault(), t, fieldPath, opts)
			if err != nil {
				return nil, errors.Trace(err)
			}
			out.Set(m.Name, v)
		default:
			v, err := decodeValue(m.Type, nodes[0], fieldPath, opts)
			if err != nil {
				return nil, errors.Trace(err)
			}
			out.Set(m.Name, v)
		}
	}
	return out, nil
}

func decodeValue(t schema.Type, n Node, path string, opts Options) (any, error) {
	switch t := t.(type) {
	case *schema.StructType:
		obj, ok := n.(*Object)
		if !ok {
			// An empty XML element has no children to parse into an
			// Object, so it arrives as an empty-text scalar. Treat it
			// as a structure with no members set.
			if s, isScalar := n.(*Scalar); isScalar {
				if text, isText := s.Value.(string); isText && text == "" {
					return decodeStruct(t, NewObject(), path, opts)
				}
			}
			return nil, decodeErrorf(path, "expected a structure, got %s", nodeKind(n))
		}
		return decodeStruct(t, obj, path, opts)
	case schema.ListType:
		return decodeList([]Node{n}, schema.DefaultContainer{}, t, path, opts)
	case schema.MapType:
		return decodeMap([]Node{n}, schema.DefaultContainer{}, t, path, opts)
	default:
		s, ok := n.(*Scalar)
		if !ok {
			return nil, decodeErrorf(path, "expected a scalar, got %s", nodeKind(n))
		}
		return decodeScalar(t, s.Value, path)
	}
}

// flattenItems normalizes the two tree renderings of a flat
// container: the query realizer produces a single Array, while XML
// produces repeated sibling entries.
func flattenItems(nodes []Node) []Node {
	var out []Node
	for _, n := range nodes {
		if arr, ok := n.(*Array); ok {
			out = append(out, arr.Items...)
			continue
		}
		out = append(out, n)
	}
	return out
}

func decodeList(nodes []Node, ct schema.Container, t schema.ListType, path string, opts Options) ([]any, error) {
	if opts.FlattenAll {
		ct = schema.FlatListContainer{}
	}
	var items []Node
	switch ct := ct.(type) {
	case schema.DefaultContainer, schema.FlatListContainer:
		items = flattenItems(nodes)
	case schema.ListContainer:
		if len(nodes) != 1 {
			return nil, decodeErrorf(path, "expected a single wrapper element, got %d", len(nodes))
		}
		wrap, ok := nodes[0].(*Object)
		if !ok {
			return nil, decodeErrorf(path, "expected a wrapper element, got %s", nodeKind(nodes[0]))
		}
		items = flattenItems(wrap.Values(ct.Member))
	default:
		return nil, decodeErrorf(path, "container encoding %T cannot apply to a sequence member", ct)
	}
	out := make([]any, 0, len(items))
	for i, item := range items {
		v, err := decodeValue(t.Elem, item, fmt.Sprintf("%s.%d", path, i+1), opts)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeMap(nodes []Node, ct schema.Container, t schema.MapType, path string, opts Options) (map[string]any, error) {
	if opts.FlattenAll {
		if c, ok := ct.(schema.MapContainer); ok {
			ct = schema.FlatMapContainer{Key: c.Key, Value: c.Value}
		}
	}
	keyName, valueName := "key", "value"
	var pairs []Node
	switch ct := ct.(type) {
	case schema.DefaultContainer:
		pairs = flattenItems(nodes)
	case schema.FlatMapContainer:
		keyName, valueName = ct.Key, ct.Value
		pairs = flattenItems(nodes)
	case schema.MapContainer:
		keyName, valueName = ct.Key, ct.Value
		if len(nodes) != 1 {
			return nil, decodeErrorf(path, "expected a single wrapper element, got %d", len(nodes))
		}
		wrap, ok := nodes[0].(*Object)
		if !ok {
			return nil, decodeErrorf(path, "expected a wrapper element, got %s", nodeKind(nodes[0]))
		}
		pairs = flattenItems(wrap.Values(ct.Entry))
	default:
		return nil, decodeErrorf(path, "container encoding %T cannot apply to a map member", ct)
	}

	keyType, isEnumKey := t.Key.(schema.EnumType)
	out := make(map[string]any, len(pairs))
	for i, p := range pairs {
		pairPath := fmt.Sprintf("%s.%d", path, i+1)
		obj, ok := p.(*Object)
		if !ok {
			return nil, decodeErrorf(pairPath, "expected a key/value pair, got %s", nodeKind(p))
		}
		kn, ok := obj.First(keyName)
		if !ok {
			return nil, decodeErrorf(pairPath, "missing %q element", keyName)
		}
		ks, ok := kn.(*Scalar)
		if !ok {
			return nil, decodeErrorf(pairPath, "map key must be a scalar")
		}
		key, err := decodeScalar(schema.StringType, ks.Value, pairPath)
		if err != nil {
			return nil, errors.Trace(err)
		}
		keyStr := key.(string)
		if isEnumKey && !keyType.Integer() && !keyType.ValidString(keyStr) {
			return nil, decodeErrorf(pairPath, "%q is not a permitted value of enum %q", keyStr, keyType.Name)
		}
		vn, ok := obj.First(valueName)
		if !ok {
			return nil, decodeErrorf(pairPath, "missing %q element", valueName)
		}
		v, err := decodeValue(t.Value, vn, childPath(path, keyStr), opts)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out[keyStr] = v
	}
	return out, nil
}

// decodeScalar converts a raw leaf value to the canonical in-memory
// form for its declared type. Raw values may be wire text (query,
// XML), native JSON values, or already-canonical values produced by a
// prior encode.
func decodeScalar(t schema.Type, raw any, path string) (any, error) {
	switch t := t.(type) {
	case schema.ScalarType:
		switch t.K {
		case schema.BoolKind:
			switch v := raw.(type) {
			case bool:
				return v, nil
			case string:
				switch v {
				case "true":
					return true, nil
				case "false":
					return false, nil
				}
			}
			return nil, decodeErrorf(path, "%v is not a boolean", raw)
		case schema.IntKind:
			bits := t.Bits
			if bits == 0 {
				bits = 64
			}
			switch v := raw.(type) {
			case int64:
				return v, nil
			case json.Number:
				i, err := strconv.ParseInt(v.String(), 10, bits)
				if err != nil {
					return nil, decodeErrorf(path, "%q is not a valid %d-bit integer", v.String(), bits)
				}
				return i, nil
			case float64:
				if v != math.Trunc(v) {
					return nil, decodeErrorf(path, "%v is not an integer", v)
				}
				return int64(v), nil
			case string:
				i, err := strconv.ParseInt(v, 10, bits)
				if err != nil {
					return nil, decodeErrorf(path, "%q is not a valid %d-bit integer", v, bits)
				}
				return i, nil
			}
			return nil, decodeErrorf(path, "%v (%T) is not an integer", raw, raw)
		case schema.FloatKind:
			switch v := raw.(type) {
			case float64:
				return v, nil
			case json.Number:
				f, err := v.Float64()
				if err != nil {
					return nil, decodeErrorf(path, "%q is not a valid number", v.String())
				}
				return f, nil
			case string:
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, decodeErrorf(path, "%q is not a valid number", v)
				}
				return f, nil
			}
			return nil, decodeErrorf(path, "%v (%T) is not a number", raw, raw)
		case schema.StringKind:
			if s, ok := raw.(string); ok {
				return s, nil
			}
			return nil, decodeErrorf(path, "%v (%T) is not a string", raw, raw)
		}
		return nil, decodeErrorf(path, "unsupported scalar kind")
	case schema.EnumType:
		if t.Integer() {
			var i int64
			switch v := raw.(type) {
			case int64:
				i = v
			case json.Number:
				parsed, err := strconv.ParseInt(v.String(), 10, 64)
				if err != nil {
					return nil, decodeErrorf(path, "%q is not a valid value of enum %q", v.String(), t.Name)
				}
				i = parsed
			case string:
				parsed, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					return nil, decodeErrorf(path, "%q is not a valid value of enum %q", v, t.Name)
				}
				i = parsed
			case float64:
				i = int64(v)
			default:
				return nil, decodeErrorf(path, "%v (%T) is not a value of enum %q", raw, raw, t.Name)
			}
			if !t.ValidInt(i) {
				return nil, decodeErrorf(path, "%d is not a permitted value of enum %q", i, t.Name)
			}
			return i, nil
		}
		s, ok := raw.(string)
		if !ok {
			return nil, decodeErrorf(path, "%v (%T) is not a value of enum %q", raw, raw, t.Name)
		}
		if !t.ValidString(s) {
			return nil, decodeErrorf(path, "%q is not a permitted value of enum %q", s, t.Name)
		}
		return s, nil
	case schema.TimestampType:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case json.Number:
			return epochTime(v.String(), path)
		case float64:
			sec, frac := math.Modf(v)
			return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
		case string:
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				return ts.UTC(), nil
			}
			if ts, err := time.Parse(http.TimeFormat, v); err == nil {
				return ts.UTC(), nil
			}
			return epochTime(v, path)
		}
		return nil, decodeErrorf(path, "%v (%T) is not a timestamp", raw, raw)
	case schema.BlobType:
		switch v := raw.(type) {
		case []byte:
			return v, nil
		case string:
			b, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, decodeErrorf(path, "invalid base64 data")
			}
			return b, nil
		}
		return nil, decodeErrorf(path, "%v (%T) is not binary data", raw, raw)
	}
	return nil, decodeErrorf(path, "unsupported type %T", t)
}

func epochTime(s, path string) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, decodeErrorf(path, "%q is not a timestamp", s)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

func nodeKind(n Node) string {
	switch n.(type) {
	case *Scalar:
		return "scalar"
	case *Object:
		return "structure"
	case *Array:
		return "sequence"
	default:
		return "unknown node"
	}
}
