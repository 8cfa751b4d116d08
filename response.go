// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package awscore

import (
	"strconv"
	"strings"

	"github.com/juju/errors"

	"github.com/juju/awscore/schema"
	"github.com/juju/awscore/transcode"
	"github.com/juju/awscore/transport"
)

// decodeResponse rebuilds the operation output shape from a 2xx wire
// response: body to tree per protocol, header-located members folded
// in, then a structural decode. Decoding a fixed response is
// deterministic, so every failure here is fatal.
func (c *Client) decodeResponse(op Operation, resp *transport.Response) (*schema.Struct, error) {
	if op.Output == nil {
		return nil, nil
	}
	tree, err := c.responseTree(op, resp)
	if err != nil {
		return nil, errors.Trace(err)
	}
	foldHeaders(tree, op.Output, resp)
	out, err := transcode.DecodeWith(op.Output, tree, transcode.Options{
		FlattenAll: c.cfg.Protocol == EC2Protocol,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return out, nil
}

func (c *Client) responseTree(op Operation, resp *transport.Response) (*transcode.Object, error) {
	st := op.Output
	if m, ok := st.PayloadMember(); ok {
		return payloadTree(c.cfg.Protocol, m, resp.Body)
	}
	if len(resp.Body) == 0 {
		return transcode.NewObject(), nil
	}
	switch c.cfg.Protocol {
	case QueryProtocol, EC2Protocol, XMLProtocol:
		_, obj, err := transcode.UnmarshalXML(resp.Body)
		if err != nil {
			return nil, errors.Trace(err)
		}
		// Query responses wrap the result in <OpNameResponse>
		// <OpNameResult>; unwrap to the result element when present.
		if inner, ok := obj.First(op.Name + "Result"); ok {
			if innerObj, ok := inner.(*transcode.Object); ok {
				return innerObj, nil
			}
		}
		return obj, nil
	case JSONProtocol:
		obj, err := transcode.UnmarshalJSON(resp.Body)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return obj, nil
	}
	return nil, errors.Errorf("unknown wire protocol %d", c.cfg.Protocol)
}

// payloadTree wraps the raw body under the declared payload member's
// wire name so the structural decode finds it in place. XML payloads
// re-root to the declared tag regardless of the element name the
// service used.
func payloadTree(protocol Protocol, m schema.Member, body []byte) (*transcode.Object, error) {
	tree := transcode.NewObject()
	switch t := m.Type.(type) {
	case schema.BlobType:
		tree.Add(m.WireName, &transcode.Scalar{Value: append([]byte(nil), body...)})
	case schema.ScalarType:
		tree.Add(m.WireName, &transcode.Scalar{Value: string(body)})
	case *schema.StructType:
		if len(body) == 0 {
			return tree, nil
		}
		if protocol == JSONProtocol {
			obj, err := transcode.UnmarshalJSON(body)
			if err != nil {
				return nil, errors.Trace(err)
			}
			tree.Add(m.WireName, obj)
			return tree, nil
		}
		_, obj, err := transcode.UnmarshalXML(body)
		if err != nil {
			return nil, errors.Trace(err)
		}
		tree.Add(m.WireName, obj)
	default:
		return nil, errors.Errorf("payload member %q has unsupported type %T", m.Name, t)
	}
	return tree, nil
}

// foldHeaders merges header-located output members into the decoded
// tree. Header text is coerced opportunistically for numeric and
// boolean members; string-consuming kinds keep the raw text.
func foldHeaders(tree *transcode.Object, st *schema.StructType, resp *transport.Response) {
	for _, m := range st.Members() {
		if m.Location != schema.HeaderLocation {
			continue
		}
		v := resp.Header.Get(m.WireName)
		if v == "" {
			continue
		}
		tree.Add(m.WireName, &transcode.Scalar{Value: coerceHeader(m.Type, v)})
	}
}

func coerceHeader(t schema.Type, s string) any {
	switch t.Kind() {
	case schema.IntKind:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	case schema.FloatKind:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case schema.BoolKind:
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return s
}

// classifyError turns a non-2xx wire response into an APIError,
// locating the machine-readable code at the protocol-specific
// position and consulting the service catalog first, then the
// built-in generic kinds.
func (c *Client) classifyError(resp *transport.Response) error {
	code, message := c.extractError(resp)
	if code == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    message,
			RawBody:    append([]byte(nil), resp.Body...),
		}
	}
	api := &APIError{
		Code:       code,
		Message:    message,
		StatusCode: resp.StatusCode,
	}
	if m, ok := matchErrorCode(c.cfg.Errors, code); ok {
		api.Retryable = m.Retryable
	}
	return api
}

func (c *Client) extractError(resp *transport.Response) (code, message string) {
	switch c.cfg.Protocol {
	case QueryProtocol, EC2Protocol, XMLProtocol:
		return extractXMLError(resp.Body)
	case JSONProtocol:
		return extractJSONError(resp)
	}
	return "", ""
}

func extractXMLError(body []byte) (code, message string) {
	if len(body) == 0 {
		return "", ""
	}
	root, obj, err := transcode.UnmarshalXML(body)
	if err != nil {
		return "", ""
	}
	errObj := obj
	if root != "Error" {
		// <ErrorResponse><Error>...</Error></ErrorResponse> and the
		// EC2 <Response><Errors><Error>... nesting both reduce to the
		// first Error element found.
		errObj = findXMLError(obj)
		if errObj == nil {
			return "", ""
		}
	}
	return scalarChild(errObj, "Code"), scalarChild(errObj, "Message")
}

func findXMLError(obj *transcode.Object) *transcode.Object {
	for _, e := range obj.Entries() {
		child, ok := e.Node.(*transcode.Object)
		if !ok {
			continue
		}
		if e.Name == "Error" {
			return child
		}
		if found := findXMLError(child); found != nil {
			return found
		}
	}
	return nil
}

func extractJSONError(resp *transport.Response) (code, message string) {
	if obj, err := transcode.UnmarshalJSON(resp.Body); err == nil && len(resp.Body) > 0 {
		for _, name := range []string{"__type", "code", "Code"} {
			if code = scalarChild(obj, name); code != "" {
				break
			}
		}
		for _, name := range []string{"message", "Message"} {
			if message = scalarChild(obj, name); message != "" {
				break
			}
		}
	}
	if code == "" {
		code = resp.Header.Get("X-Amzn-Errortype")
	}
	return trimErrorCode(code), message
}

// trimErrorCode reduces the wire forms "prefix#Code" and
// "Code:extra" to the bare code.
func trimErrorCode(code string) string {
	if i := strings.IndexByte(code, ':'); i >= 0 {
		code = code[:i]
	}
	if i := strings.LastIndexByte(code, '#'); i >= 0 {
		code = code[i+1:]
	}
	return code
}

func scalarChild(obj *transcode.Object, name string) string {
	n, ok := obj.First(name)
	if !ok {
		return ""
	}
	s, ok := n.(*transcode.Scalar)
	if !ok {
		return ""
	}
	if v, ok := s.Value.(string); ok {
		return v
	}
	return ""
}
