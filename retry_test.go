// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package awscore

import (
	"math/rand"
	"time"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"
)

type retrySuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&retrySuite{})

func (s *retrySuite) TestNeverRetryStopsImmediately(c *gc.C) {
	p := NeverRetry{}
	c.Check(p.MaxAttempts(), gc.Equals, 1)
	c.Check(p.Decide(errors.New("boom"), 0), jc.DeepEquals, RetryDecision{Stop: true})
}

func (s *retrySuite) TestExponentialBackoffSequence(c *gc.C) {
	p := Exponential{Base: time.Second, Cap: 8 * time.Second, Max: 7}
	err := errors.New("boom")

	var waits []time.Duration
	for attempt := 0; attempt < 5; attempt++ {
		d := p.Decide(err, attempt)
		c.Assert(d.Stop, jc.IsFalse)
		waits = append(waits, d.Delay)
	}
	c.Check(waits, jc.DeepEquals, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
	})
	for i := 1; i < len(waits); i++ {
		c.Check(waits[i] >= waits[i-1], jc.IsTrue)
	}
}

func (s *retrySuite) TestExponentialStopsPastMaxAttempts(c *gc.C) {
	p := Exponential{Base: time.Second, Cap: 8 * time.Second, Max: 3}
	err := errors.New("boom")

	c.Check(p.Decide(err, 0).Stop, jc.IsFalse)
	c.Check(p.Decide(err, 1).Stop, jc.IsFalse)
	c.Check(p.Decide(err, 2).Stop, jc.IsTrue)
	c.Check(p.Decide(err, 3).Stop, jc.IsTrue)
}

func (s *retrySuite) TestJitteredStaysBounded(c *gc.C) {
	p := Jittered{
		Exponential: Exponential{Base: 4 * time.Second, Cap: 32 * time.Second, Max: 10},
		Rand:        rand.New(rand.NewSource(42)),
	}
	err := errors.New("boom")

	for attempt := 0; attempt < 8; attempt++ {
		full := p.Exponential.delay(attempt)
		d := p.Decide(err, attempt)
		c.Assert(d.Stop, jc.IsFalse)
		c.Check(d.Delay >= full/2, jc.IsTrue)
		c.Check(d.Delay <= full, jc.IsTrue)
	}
}

func (s *retrySuite) TestJitteredStopsLikeExponential(c *gc.C) {
	p := Jittered{Exponential: Exponential{Base: time.Second, Cap: 8 * time.Second, Max: 2}}
	c.Check(p.Decide(errors.New("boom"), 1).Stop, jc.IsTrue)
}
