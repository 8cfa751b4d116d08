// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package awscore is the transport-and-transcoding core of a cloud
// service RPC client: it assembles, signs and dispatches wire
// requests built from declarative shape schemas, and rebuilds typed
// outputs from the responses. Service bindings supply the schemas and
// operation tables; this package supplies everything between a shape
// value and the bytes on the wire.
package awscore

import (
	"context"
	"net/url"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"
	"github.com/kr/pretty"

	"github.com/juju/awscore/credentials"
	"github.com/juju/awscore/schema"
	"github.com/juju/awscore/signing"
	"github.com/juju/awscore/transport"
)

var logger = loggo.GetLogger("awscore")

// Protocol selects the wire format requests and responses travel in.
type Protocol int

const (
	// QueryProtocol sends form-encoded query mappings and reads XML
	// responses.
	QueryProtocol Protocol = iota
	// EC2Protocol is QueryProtocol with every sequence and map
	// container flattened.
	EC2Protocol
	// JSONProtocol sends and reads JSON bodies.
	JSONProtocol
	// XMLProtocol sends and reads XML bodies.
	XMLProtocol
)

// Operation names one service operation: its wire name, HTTP surface
// and output shape. Input shapes arrive with each call, since the
// value carries its own descriptor.
type Operation struct {
	Name   string
	Method string
	Path   string
	Output *schema.StructType
}

// Config holds everything a client needs to reach one service in one
// region.
type Config struct {
	Service    string
	Region     string
	Protocol   Protocol
	APIVersion string

	// Endpoint overrides the conventional regional endpoint.
	Endpoint string

	// TargetPrefix prefixes the X-Amz-Target header under
	// JSONProtocol. Empty leaves the header unset.
	TargetPrefix string

	// Credentials defaults to the anonymous provider.
	Credentials credentials.Provider

	// Transport defaults to the net/http transport.
	Transport transport.Transport

	// Retry defaults to DefaultRetryPolicy.
	Retry Policy

	// Errors is the service's declared error catalog, consulted in
	// order before the built-in generic kinds.
	Errors []ErrorMatcher

	// Middlewares rewrite each assembled request before signing, in
	// declaration order.
	Middlewares []Middleware

	// Timeout bounds each attempt, not the whole call. Zero means no
	// per-attempt bound beyond the caller's context.
	Timeout time.Duration

	// PresignExpiry is the validity window of URL-signed requests.
	PresignExpiry time.Duration

	Clock   clock.Clock
	Metrics *Metrics
}

// Validate is part of the config contract.
func (c Config) Validate() error {
	if c.Service == "" {
		return errors.NotValidf("empty service name")
	}
	if c.Region == "" && c.Endpoint == "" {
		return errors.NotValidf("neither region nor endpoint set")
	}
	return nil
}

// Client executes operations against one service. Calls are
// independent: the client holds only immutable configuration, so one
// client is safe for concurrent use.
type Client struct {
	cfg      Config
	endpoint *url.URL
	signer   *signing.Signer
}

// NewClient validates cfg, resolves the endpoint and fills defaults.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	endpoint, err := ResolveEndpoint(cfg.Service, cfg.Region, cfg.Endpoint)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Credentials == nil {
		cfg.Credentials = credentials.Anonymous()
	}
	if cfg.Transport == nil {
		cfg.Transport = transport.NewHTTPTransport(nil)
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}
	return &Client{
		cfg:      cfg,
		endpoint: endpoint,
		signer:   signing.NewSigner(cfg.Service, cfg.Region),
	}, nil
}

// Call executes one operation: validate, build, then attempt until
// success, a fatal error, or the retry policy gives up. The most
// recent error propagates unchanged when attempts run out.
func (c *Client) Call(ctx context.Context, op Operation, in *schema.Struct) (*schema.Struct, error) {
	start := c.cfg.Clock.Now()
	out, err := c.call(ctx, op, in)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.cfg.Metrics.observeCall(op.Name, outcome, c.cfg.Clock.Now().Sub(start))
	return out, err
}

func (c *Client) call(ctx context.Context, op Operation, in *schema.Struct) (*schema.Struct, error) {
	if in != nil {
		if err := in.Type().Validate(in); err != nil {
			return nil, errors.Annotatef(err, "validating %q input", op.Name)
		}
	}
	req, err := c.buildRequest(op, in)
	if err != nil {
		return nil, errors.Trace(err)
	}
	urlSign := c.preferURLSigning(req)
	if logger.IsTraceEnabled() {
		logger.Tracef("%s %s %s query=%q", op.Name, req.Method, req.Path, req.EncodedQuery())
	}

	var out *schema.Struct
	var lastErr error
	var attempt int
	var nextDelay time.Duration

	err = retry.Call(retry.CallArgs{
		Func: func() error {
			attempt++
			lastErr = c.attempt(ctx, op, req, urlSign, &out)
			return lastErr
		},
		IsFatalError: func(err error) bool {
			if !IsRetryable(err) {
				return true
			}
			decision := c.cfg.Retry.Decide(err, attempt-1)
			if decision.Stop {
				return true
			}
			nextDelay = decision.Delay
			return false
		},
		BackoffFunc: func(delay time.Duration, attempt int) time.Duration {
			return nextDelay
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("%s attempt %d failed, retrying in %s: %v", op.Name, attempt, nextDelay, err)
			c.cfg.Metrics.observeRetry(op.Name)
		},
		Attempts: c.cfg.Retry.MaxAttempts(),
		Delay:    time.Millisecond,
		Clock:    c.cfg.Clock,
		Stop:     ctx.Done(),
	})
	if (retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err)) && lastErr != nil {
		return nil, errors.Trace(lastErr)
	}
	if err != nil {
		return nil, errors.Trace(err)
	}
	if logger.IsTraceEnabled() {
		logger.Tracef("%s output: %# v", op.Name, pretty.Formatter(out))
	}
	return out, nil
}

// attempt runs one request: fetch the active credential, re-sign (the
// body and path are reused unchanged between attempts; only the
// authentication material changes), execute, and handle the response.
func (c *Client) attempt(ctx context.Context, op Operation, req *transport.Request, urlSign bool, out **schema.Struct) error {
	cred, err := c.cfg.Credentials.Credential(ctx)
	if err != nil {
		return errors.Annotate(err, "acquiring credential")
	}
	if err := c.sign(req, cred, urlSign); err != nil {
		return errors.Trace(err)
	}
	resp, err := c.cfg.Transport.Execute(ctx, req, c.cfg.Timeout)
	if err != nil {
		return errors.Trace(err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		decoded, err := c.decodeResponse(op, resp)
		if err != nil {
			return errors.Trace(err)
		}
		*out = decoded
		return nil
	}
	return c.classifyError(resp)
}

// preferURLSigning reports whether the request should carry its
// signature in the query string: GET and HEAD under the query-based
// protocols, unless the request already carries custom headers that
// must be covered by the signature.
func (c *Client) preferURLSigning(req *transport.Request) bool {
	if req.Method != "GET" && req.Method != "HEAD" {
		return false
	}
	if c.cfg.Protocol != QueryProtocol && c.cfg.Protocol != EC2Protocol {
		return false
	}
	return len(req.Header) == 0
}

func (c *Client) sign(req *transport.Request, cred credentials.Credential, urlSign bool) error {
	stripAuth(req)
	now := c.cfg.Clock.Now()
	if urlSign {
		return errors.Trace(c.signer.SignURL(req, cred, now, c.cfg.PresignExpiry))
	}
	return errors.Trace(c.signer.SignHeaders(req, cred, now))
}

// stripAuth removes the previous attempt's signature material so
// re-signing starts clean.
func stripAuth(req *transport.Request) {
	for _, name := range []string{"Authorization", "Host", "X-Amz-Date", "X-Amz-Security-Token"} {
		req.Header.Del(name)
	}
	kept := req.Query[:0]
	for _, item := range req.Query {
		switch item.Key {
		case "X-Amz-Algorithm", "X-Amz-Credential", "X-Amz-Date", "X-Amz-Expires",
			"X-Amz-Security-Token", "X-Amz-SignedHeaders", "X-Amz-Signature":
		default:
			kept = append(kept, item)
		}
	}
	req.Query = kept
}
