// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package transcode

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"sort"
	"time"

	"github.com/juju/errors"
)

// MarshalJSON realizes a tree as a nested object/array/scalar body.
// No path flattening applies: the tree maps directly onto JSON
// values. Timestamps render as epoch seconds, binary as base64 text.
func MarshalJSON(tree *Object) ([]byte, error) {
	v, err := jsonValue(tree)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return json.Marshal(v)
}

func jsonValue(n Node) (any, error) {
	switch n := n.(type) {
	case *Scalar:
		switch v := n.Value.(type) {
		case time.Time:
			sec := float64(v.Unix()) + float64(v.Nanosecond())/1e9
			return sec, nil
		case []byte:
			return base64.StdEncoding.EncodeToString(v), nil
		default:
			return v, nil
		}
	case *Object:
		out := make(map[string]any, n.Len()+len(n.Attrs))
		// JSON has no attribute position; attributes fold in as
		// ordinary members.
		for _, a := range n.Attrs {
			out[a.Name] = a.Value
		}
		for _, e := range n.Entries() {
			if _, ok := out[e.Name]; ok {
				return nil, errors.Errorf("duplicate member %q in JSON object", e.Name)
			}
			v, err := jsonValue(e.Node)
			if err != nil {
				return nil, errors.Trace(err)
			}
			out[e.Name] = v
		}
		return out, nil
	case *Array:
		out := make([]any, 0, len(n.Items))
		for _, item := range n.Items {
			v, err := jsonValue(item)
			if err != nil {
				return nil, errors.Trace(err)
			}
			out = append(out, v)
		}
		return out, nil
	}
	return nil, errors.Errorf("unsupported tree node %T", n)
}

// UnmarshalJSON parses a JSON body back into a tree. Numbers are kept
// as json.Number so 64-bit integers survive the trip intact.
func UnmarshalJSON(data []byte) (*Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Annotate(err, "malformed JSON body")
	}
	n := treeValue(v)
	obj, ok := n.(*Object)
	if !ok {
		return nil, errors.Errorf("JSON body is not an object")
	}
	return obj, nil
}

func treeValue(v any) Node {
	switch v := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			obj.Add(k, treeValue(v[k]))
		}
		return obj
	case []any:
		arr := &Array{}
		for _, item := range v {
			arr.Items = append(arr.Items, treeValue(item))
		}
		return arr
	default:
		return &Scalar{Value: v}
	}
}
