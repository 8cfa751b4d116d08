// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package transcode is the generic encode/decode engine shared by
// every wire format. Encoding walks a shape value according to its
// member encoding table and produces an intermediate tree; each
// format then realizes the tree as its concrete wire form (a
// flattened query mapping, an XML element tree, or a JSON body).
// Decoding runs the same machinery in reverse. The container
// encoding policy is applied here, once, so formats never carry
// per-field rules of their own.
package transcode

// Node is one vertex of the intermediate tree. Trees are built fresh
// for a single encode or decode pass and discarded afterwards.
type Node interface {
	node()
}

// Scalar is a leaf value: bool, int64, float64, string, time.Time,
// []byte or json.Number, depending on which side produced it.
type Scalar struct {
	Value any
}

func (*Scalar) node() {}

// Entry is one named child of an Object. A name may occur more than
// once; flat container encodings and XML both rely on repeated
// entries.
type Entry struct {
	Name string
	Node Node
}

// Attr is an attribute-located value attached to an Object. Only the
// XML realizer renders attributes distinctly; other formats fold them
// in as ordinary entries.
type Attr struct {
	Name  string
	Value string
}

// Object is an ordered, keyed mapping of name to child node.
type Object struct {
	entries []Entry

	// Attrs carries attribute-located members.
	Attrs []Attr
}

// NewObject returns an empty object node.
func NewObject() *Object {
	return &Object{}
}

func (*Object) node() {}

// Add appends a named child, preserving declaration order.
func (o *Object) Add(name string, n Node) *Object {
	o.entries = append(o.entries, Entry{Name: name, Node: n})
	return o
}

// SetAttr appends an attribute.
func (o *Object) SetAttr(name, value string) *Object {
	o.Attrs = append(o.Attrs, Attr{Name: name, Value: value})
	return o
}

// Entries returns the ordered children.
func (o *Object) Entries() []Entry {
	return o.entries
}

// Values returns every child recorded under name, in order.
func (o *Object) Values(name string) []Node {
	var out []Node
	for _, e := range o.entries {
		if e.Name == name {
			out = append(out, e.Node)
		}
	}
	return out
}

// First returns the first child recorded under name.
func (o *Object) First(name string) (Node, bool) {
	for _, e := range o.entries {
		if e.Name == name {
			return e.Node, true
		}
	}
	return nil, false
}

// Attr returns the named attribute value.
func (o *Object) Attr(name string) (string, bool) {
	for _, a := range o.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Len returns the number of entries.
func (o *Object) Len() int {
	return len(o.entries)
}

// Array is an ordered sequence of nodes. Wire indices derived from an
// array are always 1-based and contiguous.
type Array struct {
	Items []Node
}

func (*Array) node() {}
