// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package transcode

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/juju/errors"
)

// MarshalXML materializes a tree as nested named elements rooted at
// root. Arrays render as repeated sibling elements sharing their
// entry's name, which realizes both the flat container encodings and
// the members of wrapped ones. Attribute-located values render as XML
// attributes. A non-empty namespace becomes an xmlns attribute on the
// root element.
func MarshalXML(tree *Object, root, namespace string) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	start := xml.StartElement{Name: xml.Name{Local: root}}
	if namespace != "" {
		start.Attr = append(start.Attr, xml.Attr{
			Name:  xml.Name{Local: "xmlns"},
			Value: namespace,
		})
	}
	if err := writeXMLObject(enc, start, tree); err != nil {
		return nil, errors.Trace(err)
	}
	if err := enc.Flush(); err != nil {
		return nil, errors.Trace(err)
	}
	return buf.Bytes(), nil
}

func writeXMLObject(enc *xml.Encoder, start xml.StartElement, obj *Object) error {
	for _, a := range obj.Attrs {
		start.Attr = append(start.Attr, xml.Attr{
			Name:  xml.Name{Local: a.Name},
			Value: a.Value,
		})
	}
	if err := enc.EncodeToken(start); err != nil {
		return errors.Trace(err)
	}
	for _, e := range obj.Entries() {
		if err := writeXMLNode(enc, e.Name, e.Node); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(enc.EncodeToken(start.End()))
}

func writeXMLNode(enc *xml.Encoder, name string, n Node) error {
	switch n := n.(type) {
	case *Scalar:
		start := xml.StartElement{Name: xml.Name{Local: name}}
		if err := enc.EncodeToken(start); err != nil {
			return errors.Trace(err)
		}
		if err := enc.EncodeToken(xml.CharData(scalarText(n.Value))); err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(enc.EncodeToken(start.End()))
	case *Object:
		return errors.Trace(writeXMLObject(enc, xml.StartElement{Name: xml.Name{Local: name}}, n))
	case *Array:
		for _, item := range n.Items {
			if err := writeXMLNode(enc, name, item); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}
	return errors.Errorf("unsupported tree node %T", n)
}

// UnmarshalXML parses an element tree back into a tree object,
// returning the root element's name alongside it. Repeated sibling
// elements stay as repeated entries; the schema-aware decode pass
// regroups them per container encoding.
func UnmarshalXML(data []byte) (string, *Object, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", nil, errors.Errorf("no root element found")
		}
		if err != nil {
			return "", nil, errors.Trace(err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		n, err := parseXMLElement(dec, start)
		if err != nil {
			return "", nil, errors.Trace(err)
		}
		obj, ok := n.(*Object)
		if !ok {
			// A root holding nothing but text still decodes as a
			// structure with no members.
			obj = NewObject()
		}
		return start.Name.Local, obj, nil
	}
}

func parseXMLElement(dec *xml.Decoder, start xml.StartElement) (Node, error) {
	obj := NewObject()
	for _, a := range start.Attr {
		if a.Name.Local == "xmlns" || a.Name.Space == "xmlns" {
			continue
		}
		obj.SetAttr(a.Name.Local, a.Value)
	}
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Trace(err)
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			child, err := parseXMLElement(dec, tok)
			if err != nil {
				return nil, errors.Trace(err)
			}
			obj.Add(tok.Name.Local, child)
		case xml.CharData:
			text.Write(tok)
		case xml.EndElement:
			if obj.Len() == 0 && len(obj.Attrs) == 0 {
				return &Scalar{Value: text.String()}, nil
			}
			return obj, nil
		}
	}
}
