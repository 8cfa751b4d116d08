// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package awscore

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/juju/awscore/schema"
	"github.com/juju/awscore/transcode"
	"github.com/juju/awscore/transport"
)

// Middleware rewrites an assembled wire request before signing.
// Middlewares run in declaration order.
type Middleware func(*transport.Request) error

// InvocationID returns a middleware stamping each request with a
// unique invocation id header, so service-side logs can correlate the
// attempts of one call.
func InvocationID() Middleware {
	return func(req *transport.Request) error {
		req.Header.Set("Amz-Sdk-Invocation-Id", uuid.NewString())
		return nil
	}
}

// buildRequest assembles the wire request for one operation: path
// template substitution, header/query member resolution, the body in
// the configured protocol, and the middlewares, in that order.
func (c *Client) buildRequest(op Operation, in *schema.Struct) (*transport.Request, error) {
	pathTemplate := op.Path
	if pathTemplate == "" {
		pathTemplate = "/"
	}
	pathTemplate, templateQuery, _ := strings.Cut(pathTemplate, "?")

	path, err := substitutePath(pathTemplate, in)
	if err != nil {
		return nil, errors.Trace(err)
	}
	req := transport.NewRequest(op.Method, c.endpoint, path)

	// Query items from the path template and from querystring-located
	// members are additive: duplicates are all preserved.
	if templateQuery != "" {
		items, err := transcode.ParseQuery(templateQuery)
		if err != nil {
			return nil, errors.Annotatef(err, "parsing path template query for %q", op.Name)
		}
		for _, item := range items {
			req.AddQuery(item.Key, item.Value)
		}
	}

	if in != nil {
		for _, m := range in.Type().Members() {
			raw, ok := in.Get(m.Name)
			if !ok {
				continue
			}
			switch m.Location {
			case schema.HeaderLocation:
				s, err := transcode.WireString(m.Type, raw, m.Name)
				if err != nil {
					return nil, errors.Trace(err)
				}
				req.Header.Set(m.WireName, s)
			case schema.QueryLocation:
				s, err := transcode.WireString(m.Type, raw, m.Name)
				if err != nil {
					return nil, errors.Trace(err)
				}
				req.AddQuery(m.WireName, s)
			}
		}
	}

	if err := c.buildBody(req, op, in); err != nil {
		return nil, errors.Trace(err)
	}

	for _, mw := range c.cfg.Middlewares {
		if err := mw(req); err != nil {
			return nil, errors.Annotatef(err, "middleware for %q", op.Name)
		}
	}
	return req, nil
}

// buildBody encodes the operation input as the request body in the
// configured protocol. A declared payload member carries the whole
// body on its own; otherwise the body-located members encode shape by
// shape.
func (c *Client) buildBody(req *transport.Request, op Operation, in *schema.Struct) error {
	if in != nil && in.Type().Payload != "" {
		return c.buildPayloadBody(req, in)
	}

	switch c.cfg.Protocol {
	case QueryProtocol, EC2Protocol:
		items := []transcode.Item{
			{Key: "Action", Value: op.Name},
			{Key: "Version", Value: c.cfg.APIVersion},
		}
		if in != nil {
			tree, err := transcode.EncodeWith(in, transcode.Options{
				FlattenAll: c.cfg.Protocol == EC2Protocol,
			})
			if err != nil {
				return errors.Trace(err)
			}
			items = append(items, transcode.QueryItems(tree)...)
		}
		if req.Method == "GET" || req.Method == "HEAD" {
			for _, item := range items {
				req.AddQuery(item.Key, item.Value)
			}
			return nil
		}
		sort.Slice(items, func(i, j int) bool {
			if items[i].Key != items[j].Key {
				return items[i].Key < items[j].Key
			}
			return items[i].Value < items[j].Value
		})
		req.Body = &transport.Body{Kind: transport.TextBody, Text: transcode.EncodeQuery(items)}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
		return nil

	case JSONProtocol:
		data := []byte("{}")
		if in != nil {
			tree, err := transcode.Encode(in)
			if err != nil {
				return errors.Trace(err)
			}
			data, err = transcode.MarshalJSON(tree)
			if err != nil {
				return errors.Trace(err)
			}
		}
		req.Body = &transport.Body{Kind: transport.JSONBody, Data: data}
		req.Header.Set("Content-Type", "application/x-amz-json-1.1")
		if c.cfg.TargetPrefix != "" {
			req.Header.Set("X-Amz-Target", c.cfg.TargetPrefix+"."+op.Name)
		}
		return nil

	case XMLProtocol:
		if in == nil {
			return nil
		}
		tree, err := transcode.Encode(in)
		if err != nil {
			return errors.Trace(err)
		}
		if tree.Len() == 0 && len(tree.Attrs) == 0 {
			return nil
		}
		req.Body = &transport.Body{
			Kind:      transport.XMLBody,
			Node:      tree,
			Root:      in.Type().Name,
			Namespace: in.Type().XMLNamespace,
		}
		req.Header.Set("Content-Type", "text/xml")
		return nil
	}
	return errors.Errorf("unknown wire protocol %d", c.cfg.Protocol)
}

// buildPayloadBody encodes the declared payload member's value as the
// entire request body, remapping the XML root element to the member's
// wire name.
func (c *Client) buildPayloadBody(req *transport.Request, in *schema.Struct) error {
	st := in.Type()
	m, ok := st.PayloadMember()
	if !ok {
		return errors.Errorf("shape %q declares payload member %q which does not exist", st.Name, st.Payload)
	}
	raw, ok := in.Get(m.Name)
	if !ok {
		return nil
	}
	switch t := m.Type.(type) {
	case schema.BlobType:
		data, ok := raw.([]byte)
		if !ok {
			return errors.Errorf("payload member %q expects binary data, got %T", m.Name, raw)
		}
		req.Body = &transport.Body{Kind: transport.BlobBody, Data: data}
		req.Header.Set("Content-Type", "application/octet-stream")
	case schema.ScalarType:
		s, ok := raw.(string)
		if !ok || t.K != schema.StringKind {
			return errors.Errorf("payload member %q must be a string or binary scalar", m.Name)
		}
		req.Body = &transport.Body{Kind: transport.TextBody, Text: s}
	case *schema.StructType:
		sub, ok := raw.(*schema.Struct)
		if !ok {
			return errors.Errorf("payload member %q expects a %q shape value, got %T", m.Name, t.Name, raw)
		}
		tree, err := transcode.Encode(sub)
		if err != nil {
			return errors.Trace(err)
		}
		if c.cfg.Protocol == JSONProtocol {
			data, err := transcode.MarshalJSON(tree)
			if err != nil {
				return errors.Trace(err)
			}
			req.Body = &transport.Body{Kind: transport.JSONBody, Data: data}
			req.Header.Set("Content-Type", "application/x-amz-json-1.1")
			return nil
		}
		ns := t.XMLNamespace
		if ns == "" {
			ns = st.XMLNamespace
		}
		req.Body = &transport.Body{
			Kind: transport.XMLBody,
			Node: tree,
			// The payload's element name is the declared wire tag, not
			// the shape type's own name.
			Root:      m.WireName,
			Namespace: ns,
		}
		req.Header.Set("Content-Type", "text/xml")
	default:
		return errors.Errorf("payload member %q has unsupported type %T", m.Name, m.Type)
	}
	return nil
}

// substitutePath resolves {name} and {name+} placeholders against
// URI-located members of in. Plain placeholders substitute verbatim;
// the + form percent-encodes the value.
func substitutePath(template string, in *schema.Struct) (string, error) {
	var b strings.Builder
	rest := template
	for {
		i := strings.IndexByte(rest, '{')
		if i < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:i])
		rest = rest[i+1:]
		j := strings.IndexByte(rest, '}')
		if j < 0 {
			return "", errors.Errorf("unterminated placeholder in path template %q", template)
		}
		name := rest[:j]
		rest = rest[j+1:]

		encode := strings.HasSuffix(name, "+")
		name = strings.TrimSuffix(name, "+")
		value, err := uriMemberValue(in, name)
		if err != nil {
			return "", errors.Trace(err)
		}
		if encode {
			value = transcode.Escape(value)
		}
		b.WriteString(value)
	}
}

func uriMemberValue(in *schema.Struct, name string) (string, error) {
	if in == nil {
		return "", errors.Errorf("path placeholder %q with no input shape", name)
	}
	m, ok := in.Type().Member(name)
	if !ok {
		return "", errors.Errorf("path placeholder %q does not match any member of shape %q", name, in.Type().Name)
	}
	raw, ok := in.Get(name)
	if !ok {
		return "", errors.Errorf("path placeholder %q has no value", name)
	}
	s, err := transcode.WireString(m.Type, raw, name)
	if err != nil {
		return "", errors.Trace(err)
	}
	return s, nil
}
