// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package awscore

import (
	"math/rand"
	"time"
)

// RetryDecision is a policy's verdict on one failed attempt: give up,
// or wait Delay and try again.
type RetryDecision struct {
	Stop  bool
	Delay time.Duration
}

// Policy decides, after each failed attempt, whether to retry and how
// long to wait first. Attempt numbers are zero-based: the first failed
// attempt is offered as attempt 0.
type Policy interface {
	Decide(err error, attempt int) RetryDecision
	MaxAttempts() int
}

// NeverRetry fails immediately on the first error.
type NeverRetry struct{}

// Decide is part of the Policy interface.
func (NeverRetry) Decide(err error, attempt int) RetryDecision {
	return RetryDecision{Stop: true}
}

// MaxAttempts is part of the Policy interface.
func (NeverRetry) MaxAttempts() int {
	return 1
}

// Exponential doubles the wait after every failed attempt, starting
// at Base and never exceeding Cap, for at most Max attempts. With
// Base 1s and Cap 8s the waits run 1s, 2s, 4s, 8s, 8s, ...
type Exponential struct {
	Base time.Duration
	Cap  time.Duration
	Max  int
}

// Decide is part of the Policy interface.
func (p Exponential) Decide(err error, attempt int) RetryDecision {
	if attempt+1 >= p.Max {
		return RetryDecision{Stop: true}
	}
	return RetryDecision{Delay: p.delay(attempt)}
}

// MaxAttempts is part of the Policy interface.
func (p Exponential) MaxAttempts() int {
	return p.Max
}

func (p Exponential) delay(attempt int) time.Duration {
	delay := p.Base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.Cap {
			return p.Cap
		}
	}
	if delay > p.Cap {
		return p.Cap
	}
	return delay
}

// Jittered is Exponential with bounded random jitter: each wait is
// drawn uniformly from [delay/2, delay], which keeps a fleet of
// clients from retrying in lockstep.
type Jittered struct {
	Exponential

	// Rand supplies the jitter; nil uses the shared source.
	Rand *rand.Rand
}

// Decide is part of the Policy interface.
func (p Jittered) Decide(err error, attempt int) RetryDecision {
	decision := p.Exponential.Decide(err, attempt)
	if decision.Stop || decision.Delay <= 0 {
		return decision
	}
	half := decision.Delay / 2
	var jitter time.Duration
	if p.Rand != nil {
		jitter = time.Duration(p.Rand.Int63n(int64(half) + 1))
	} else {
		jitter = time.Duration(rand.Int63n(int64(half) + 1))
	}
	decision.Delay = half + jitter
	return decision
}

// DefaultRetryPolicy is the policy a client uses when none is
// configured: up to five attempts with jittered waits capped at 8s.
func DefaultRetryPolicy() Policy {
	return Jittered{Exponential: Exponential{
		Base: time.Second,
		Cap:  8 * time.Second,
		Max:  5,
	}}
}
