// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package awscore

import (
	"context"

	"github.com/juju/awscore/schema"
)

// Call is the deferred result of an asynchronous operation. It
// completes exactly once: either Output or Error is set before the
// call is delivered on Done.
type Call struct {
	Operation Operation
	Input     *schema.Struct
	Output    *schema.Struct
	Error     error
	Done      chan *Call
}

func (call *Call) done() {
	select {
	case call.Done <- call:
	default:
		// The caller failed to keep Done buffered; dropping the
		// delivery here matches net/rpc rather than blocking the
		// client goroutine forever.
		logger.Errorf("discarding completed %q call, done channel is full", call.Operation.Name)
	}
}

// Go starts the operation and returns immediately. Cancelling ctx
// stops further retry attempts; an attempt already handed to the
// transport is not force-aborted. The done channel must be buffered;
// a nil done allocates one.
func (c *Client) Go(ctx context.Context, op Operation, in *schema.Struct, done chan *Call) *Call {
	if done == nil {
		done = make(chan *Call, 1)
	} else if cap(done) == 0 {
		panic("awscore: done channel is unbuffered")
	}
	call := &Call{
		Operation: op,
		Input:     in,
		Done:      done,
	}
	go func() {
		call.Output, call.Error = c.Call(ctx, op, in)
		call.done()
	}()
	return call
}
