// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package awscore_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/awscore"
	"github.com/juju/awscore/credentials"
	"github.com/juju/awscore/schema"
	"github.com/juju/awscore/transport"
)

type clientSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&clientSuite{})

var testCredentials = credentials.Static(credentials.Credential{
	AccessKeyID:     "AKIDEXAMPLE",
	SecretAccessKey: "secret",
})

var thingOutput = schema.NewStructType("DescribeThingResult",
	schema.Member{Name: "Id", WireName: "Id", Type: schema.StringType},
	schema.Member{Name: "Count", WireName: "Count", Type: schema.Int64Type},
)

func (s *clientSuite) newClient(c *gc.C, cfg awscore.Config) *awscore.Client {
	if cfg.Service == "" {
		cfg.Service = "sts"
	}
	if cfg.Region == "" {
		cfg.Region = "eu-west-1"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2011-06-15"
	}
	if cfg.Credentials == nil {
		cfg.Credentials = testCredentials
	}
	if cfg.Retry == nil {
		cfg.Retry = awscore.NeverRetry{}
	}
	client, err := awscore.NewClient(cfg)
	c.Assert(err, jc.ErrorIsNil)
	return client
}

func fastRetry(max int) awscore.Policy {
	return awscore.Exponential{Base: time.Millisecond, Cap: 4 * time.Millisecond, Max: max}
}

func (s *clientSuite) TestQueryCallDecodesResult(c *gc.C) {
	var gotBody string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<DescribeThingResponse><DescribeThingResult>` +
			`<Id>thing-1</Id><Count>2</Count>` +
			`</DescribeThingResult></DescribeThingResponse>`))
	}))
	defer srv.Close()

	client := s.newClient(c, awscore.Config{Protocol: awscore.QueryProtocol, Endpoint: srv.URL})
	in := schema.NewStruct(schema.NewStructType("Req",
		schema.Member{Name: "Name", WireName: "Name", Type: schema.StringType},
	)).Set("Name", "thing-1")

	out, err := client.Call(context.Background(),
		awscore.Operation{Name: "DescribeThing", Method: "POST", Path: "/", Output: thingOutput}, in)
	c.Assert(err, jc.ErrorIsNil)

	c.Check(gotBody, gc.Equals, "Action=DescribeThing&Name=thing-1&Version=2011-06-15")
	c.Check(gotAuth, gc.Matches, `AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/.*`)
	id, _ := out.Get("Id")
	c.Check(id, gc.Equals, "thing-1")
	count, _ := out.Get("Count")
	c.Check(count, gc.Equals, int64(2))
}

func (s *clientSuite) TestThrottlingRetriedThenSucceeds(c *gc.C) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`<ErrorResponse><Error>` +
				`<Code>Throttling</Code><Message>Rate exceeded</Message>` +
				`</Error></ErrorResponse>`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<DescribeThingResponse><DescribeThingResult>` +
			`<Id>thing-1</Id><Count>1</Count>` +
			`</DescribeThingResult></DescribeThingResponse>`))
	}))
	defer srv.Close()

	client := s.newClient(c, awscore.Config{
		Protocol: awscore.QueryProtocol,
		Endpoint: srv.URL,
		Retry:    fastRetry(3),
	})
	out, err := client.Call(context.Background(),
		awscore.Operation{Name: "DescribeThing", Method: "POST", Path: "/", Output: thingOutput}, nil)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(atomic.LoadInt32(&calls), gc.Equals, int32(2))
	id, _ := out.Get("Id")
	c.Check(id, gc.Equals, "thing-1")
}

func (s *clientSuite) TestUntypedErrorIsFatal(c *gc.C) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	client := s.newClient(c, awscore.Config{
		Protocol: awscore.QueryProtocol,
		Endpoint: srv.URL,
		Retry:    fastRetry(5),
	})
	_, err := client.Call(context.Background(),
		awscore.Operation{Name: "DescribeThing", Method: "POST", Path: "/", Output: thingOutput}, nil)

	// No recognizable code, so the response is not retryable even
	// though the status is 5xx.
	c.Assert(err, gc.NotNil)
	c.Check(atomic.LoadInt32(&calls), gc.Equals, int32(1))
	var api *awscore.APIError
	c.Assert(errors.As(err, &api), jc.IsTrue)
	c.Check(api.StatusCode, gc.Equals, 503)
	c.Check(string(api.RawBody), gc.Equals, "upstream unavailable")
}

func (s *clientSuite) TestTransportFailureOfferedToPolicy(c *gc.C) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	client := s.newClient(c, awscore.Config{
		Protocol: awscore.QueryProtocol,
		Endpoint: endpoint,
		Retry:    fastRetry(2),
	})
	_, err := client.Call(context.Background(),
		awscore.Operation{Name: "DescribeThing", Method: "POST", Path: "/"}, nil)
	c.Assert(err, jc.ErrorIs, transport.ErrTransport)
}

func (s *clientSuite) TestValidationFailureNeverDispatches(c *gc.C) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	st := schema.NewStructType("Req",
		schema.Member{Name: "Name", WireName: "Name", Type: schema.StringType, Required: true},
	).WithValidator(func(v *schema.Struct) error {
		return schema.CheckRequired(v, "Name")
	})

	client := s.newClient(c, awscore.Config{Protocol: awscore.QueryProtocol, Endpoint: srv.URL})
	_, err := client.Call(context.Background(),
		awscore.Operation{Name: "CreateThing", Method: "POST", Path: "/"}, schema.NewStruct(st))

	c.Assert(err, gc.NotNil)
	c.Check(schema.IsValidationError(errors.Cause(err)), jc.IsTrue)
	c.Check(atomic.LoadInt32(&calls), gc.Equals, int32(0))
}

func (s *clientSuite) TestHeaderMembersFoldIntoOutput(c *gc.C) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Count", "42")
		w.Header().Set("X-Ready", "true")
		w.Header().Set("X-Token", "abc123")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<Out><Id>x</Id></Out>`))
	}))
	defer srv.Close()

	outType := schema.NewStructType("Out",
		schema.Member{Name: "Id", WireName: "Id", Type: schema.StringType},
		schema.Member{Name: "Count", WireName: "X-Count", Type: schema.Int64Type, Location: schema.HeaderLocation},
		schema.Member{Name: "Ready", WireName: "X-Ready", Type: schema.BoolType, Location: schema.HeaderLocation},
		schema.Member{Name: "Token", WireName: "X-Token", Type: schema.StringType, Location: schema.HeaderLocation},
	)
	client := s.newClient(c, awscore.Config{Protocol: awscore.XMLProtocol, Endpoint: srv.URL})
	out, err := client.Call(context.Background(),
		awscore.Operation{Name: "GetThing", Method: "GET", Path: "/", Output: outType}, nil)
	c.Assert(err, jc.ErrorIsNil)

	count, _ := out.Get("Count")
	c.Check(count, gc.Equals, int64(42))
	ready, _ := out.Get("Ready")
	c.Check(ready, gc.Equals, true)
	token, _ := out.Get("Token")
	c.Check(token, gc.Equals, "abc123")
}

func (s *clientSuite) TestQueryGetPrefersURLSigning(c *gc.C) {
	var gotAuth, gotSignature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotSignature = r.URL.Query().Get("X-Amz-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := s.newClient(c, awscore.Config{Protocol: awscore.QueryProtocol, Endpoint: srv.URL})
	_, err := client.Call(context.Background(),
		awscore.Operation{Name: "DescribeThing", Method: "GET", Path: "/"}, nil)
	c.Assert(err, jc.ErrorIsNil)

	c.Check(gotAuth, gc.Equals, "")
	c.Check(gotSignature, gc.Matches, `[0-9a-f]{64}`)
}

func (s *clientSuite) TestCustomHeadersForceHeaderSigning(c *gc.C) {
	var gotAuth, gotSignature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotSignature = r.URL.Query().Get("X-Amz-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := s.newClient(c, awscore.Config{
		Protocol: awscore.QueryProtocol,
		Endpoint: srv.URL,
		Middlewares: []awscore.Middleware{func(req *transport.Request) error {
			req.Header.Set("X-Custom", "covered")
			return nil
		}},
	})
	_, err := client.Call(context.Background(),
		awscore.Operation{Name: "DescribeThing", Method: "GET", Path: "/"}, nil)
	c.Assert(err, jc.ErrorIsNil)

	// The custom header must be covered by the signature, so the
	// signature moves into the Authorization header.
	c.Check(gotSignature, gc.Equals, "")
	c.Check(gotAuth, gc.Matches, `AWS4-HMAC-SHA256 .*SignedHeaders=[^ ]*x-custom.*`)
}

func (s *clientSuite) TestJSONCallRoundTrip(c *gc.C) {
	var gotTarget, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTarget = r.Header.Get("X-Amz-Target")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"Id":"thing-9","Count":7}`))
	}))
	defer srv.Close()

	client := s.newClient(c, awscore.Config{
		Protocol:     awscore.JSONProtocol,
		Endpoint:     srv.URL,
		TargetPrefix: "ExampleService",
	})
	in := schema.NewStruct(schema.NewStructType("Req",
		schema.Member{Name: "Id", WireName: "Id", Type: schema.StringType},
	)).Set("Id", "thing-9")

	out, err := client.Call(context.Background(),
		awscore.Operation{Name: "DescribeThing", Method: "POST", Path: "/", Output: thingOutput}, in)
	c.Assert(err, jc.ErrorIsNil)

	c.Check(gotTarget, gc.Equals, "ExampleService.DescribeThing")
	c.Check(gotBody, gc.Equals, `{"Id":"thing-9"}`)
	count, _ := out.Get("Count")
	c.Check(count, gc.Equals, int64(7))
}

func (s *clientSuite) TestCancellationStopsFurtherAttempts(c *gc.C) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<Error><Code>Throttling</Code><Message>wait</Message></Error>`))
	}))
	defer srv.Close()

	client := s.newClient(c, awscore.Config{
		Protocol: awscore.QueryProtocol,
		Endpoint: srv.URL,
		Retry:    awscore.Exponential{Base: time.Minute, Cap: time.Minute, Max: 10},
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Call(ctx,
			awscore.Operation{Name: "DescribeThing", Method: "POST", Path: "/"}, nil)
		done <- err
	}()

	// Give the first attempt time to fail, then abandon the call
	// while it waits out the backoff.
	for atomic.LoadInt32(&calls) == 0 {
		time.Sleep(time.Millisecond)
	}
	// Let the first attempt finish classifying before cancelling, so
	// the propagated error is the throttling response rather than an
	// aborted read.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		c.Check(awscore.IsThrottling(err), jc.IsTrue)
	case <-time.After(10 * time.Second):
		c.Fatal("call did not stop after cancellation")
	}
	c.Check(atomic.LoadInt32(&calls), gc.Equals, int32(1))
}

func (s *clientSuite) TestGoDeliversCompletedCall(c *gc.C) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<DescribeThingResponse><DescribeThingResult>` +
			`<Id>thing-1</Id><Count>1</Count>` +
			`</DescribeThingResult></DescribeThingResponse>`))
	}))
	defer srv.Close()

	client := s.newClient(c, awscore.Config{Protocol: awscore.QueryProtocol, Endpoint: srv.URL})
	call := client.Go(context.Background(),
		awscore.Operation{Name: "DescribeThing", Method: "POST", Path: "/", Output: thingOutput}, nil, nil)

	select {
	case completed := <-call.Done:
		c.Assert(completed, gc.Equals, call)
		c.Assert(completed.Error, jc.ErrorIsNil)
		id, _ := completed.Output.Get("Id")
		c.Check(id, gc.Equals, "thing-1")
	case <-time.After(10 * time.Second):
		c.Fatal("call never completed")
	}
}

func (s *clientSuite) TestGoPanicsOnUnbufferedDone(c *gc.C) {
	client := s.newClient(c, awscore.Config{Protocol: awscore.QueryProtocol})
	c.Check(func() {
		client.Go(context.Background(), awscore.Operation{Name: "Op", Method: "POST", Path: "/"},
			nil, make(chan *awscore.Call))
	}, gc.PanicMatches, "awscore: done channel is unbuffered")
}
