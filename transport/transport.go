// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package transport defines the wire request and response carried
// between the client core and the HTTP layer, and the Transport
// capability that executes them. The concrete transport is an
// external collaborator; the net/http implementation here is the
// default one.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/juju/errors"

	"github.com/juju/awscore/transcode"
)

// ErrTransport marks connection-level failures: dial errors,
// timeouts, broken transfers. These are always offered to the retry
// policy.
const ErrTransport = errors.ConstError("transport failure")

// BodyKind discriminates the request body variant.
type BodyKind int

const (
	EmptyBody BodyKind = iota
	TextBody
	JSONBody
	XMLBody
	BlobBody
)

// Body is the request body variant: empty, raw text, JSON bytes, an
// XML element tree, or an opaque binary buffer.
type Body struct {
	Kind BodyKind

	// Text carries TextBody payloads.
	Text string
	// Data carries JSONBody, BlobBody and pre-rendered payloads.
	Data []byte

	// Node, Root and Namespace describe an XMLBody before rendering.
	Node      *transcode.Object
	Root      string
	Namespace string

	rendered []byte
	done     bool
}

// Bytes realizes the body as wire bytes. XML trees render once and
// the result is reused, so signing and transmission hash identical
// bytes.
func (b *Body) Bytes() ([]byte, error) {
	if b.done {
		return b.rendered, nil
	}
	switch b.Kind {
	case EmptyBody:
		b.rendered = nil
	case TextBody:
		b.rendered = []byte(b.Text)
	case JSONBody, BlobBody:
		b.rendered = b.Data
	case XMLBody:
		data, err := transcode.MarshalXML(b.Node, b.Root, b.Namespace)
		if err != nil {
			return nil, errors.Trace(err)
		}
		b.rendered = data
	default:
		return nil, errors.Errorf("unknown body kind %d", b.Kind)
	}
	b.done = true
	return b.rendered, nil
}

// IsEmpty reports whether the body carries no payload.
func (b *Body) IsEmpty() bool {
	return b == nil || b.Kind == EmptyBody
}

// Request is the assembled wire request handed to the signer and the
// transport.
type Request struct {
	Method   string
	Endpoint *url.URL
	Path     string
	Header   http.Header
	Query    []transcode.Item
	Body     *Body
}

// NewRequest returns a request with an initialized header map and an
// empty body.
func NewRequest(method string, endpoint *url.URL, path string) *Request {
	return &Request{
		Method:   method,
		Endpoint: endpoint,
		Path:     path,
		Header:   make(http.Header),
		Body:     &Body{},
	}
}

// AddQuery appends a query item. Items are additive: duplicate keys
// are all preserved.
func (r *Request) AddQuery(key, value string) {
	r.Query = append(r.Query, transcode.Item{Key: key, Value: value})
}

// EncodedQuery renders the query items sorted and percent-encoded.
func (r *Request) EncodedQuery() string {
	items := make([]transcode.Item, len(r.Query))
	copy(items, r.Query)
	return transcode.EncodeQuery(transcode.QueryItems(itemsTree(items)))
}

// itemsTree gives query items the deterministic sorted rendering the
// transcoder applies to trees.
func itemsTree(items []transcode.Item) *transcode.Object {
	obj := transcode.NewObject()
	for _, item := range items {
		obj.Add(item.Key, &transcode.Scalar{Value: item.Value})
	}
	return obj
}

// URL assembles the full request URL. The path is already in wire
// form, so it is joined verbatim rather than re-escaped.
func (r *Request) URL() string {
	path := r.Path
	if path == "" {
		path = "/"
	}
	s := r.Endpoint.Scheme + "://" + r.Endpoint.Host + path
	if q := r.EncodedQuery(); q != "" {
		s += "?" + q
	}
	return s
}

// Response is the wire response handed back to the validator.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport executes a wire request. Implementations must honour the
// context and the per-attempt timeout, and must wrap connection-level
// failures with ErrTransport.
type Transport interface {
	Execute(ctx context.Context, req *Request, timeout time.Duration) (*Response, error)
}

type httpTransport struct {
	client *http.Client
}

// NewHTTPTransport returns the default Transport built on an
// http.Client. A nil client uses http.DefaultClient; connection
// pooling stays with the caller-owned client.
func NewHTTPTransport(client *http.Client) Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpTransport{client: client}
}

// Execute is part of the Transport interface.
func (t *httpTransport) Execute(ctx context.Context, req *Request, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	body, err := req.Body.Bytes()
	if err != nil {
		return nil, errors.Trace(err)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Trace(err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	hresp, err := t.client.Do(hreq)
	if err != nil {
		return nil, errors.Annotatef(ErrTransport, "executing %s %s: %v", req.Method, req.Path, err)
	}
	defer func() { _ = hresp.Body.Close() }()
	data, err := io.ReadAll(hresp.Body)
	if err != nil {
		return nil, errors.Annotatef(ErrTransport, "reading response body: %v", err)
	}
	return &Response{
		StatusCode: hresp.StatusCode,
		Header:     hresp.Header,
		Body:       data,
	}, nil
}
