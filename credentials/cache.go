// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package credentials

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshWindow is how long before expiry a cached credential
// is treated as stale, so callers refresh before it actually lapses.
const DefaultRefreshWindow = 3 * time.Minute

// Cache wraps a provider with an expiring cache. Concurrent callers
// observing an expired credential await a single in-flight refresh
// rather than issuing duplicate fetches, and all of them receive the
// same refreshed credential.
type Cache struct {
	provider Provider
	clock    clock.Clock
	window   time.Duration

	mu      sync.Mutex
	current *Credential

	group singleflight.Group
}

// NewCache returns a caching provider. A nil clock uses the wall
// clock; a zero window uses DefaultRefreshWindow.
func NewCache(provider Provider, clk clock.Clock, window time.Duration) *Cache {
	if clk == nil {
		clk = clock.WallClock
	}
	if window == 0 {
		window = DefaultRefreshWindow
	}
	return &Cache{
		provider: provider,
		clock:    clk,
		window:   window,
	}
}

// Credential is part of the Provider interface.
func (c *Cache) Credential(ctx context.Context) (Credential, error) {
	c.mu.Lock()
	if c.current != nil && !c.current.IsExpired(c.clock.Now(), c.window) {
		cred := *c.current
		c.mu.Unlock()
		return cred, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("refresh", func() (any, error) {
		cred, err := c.provider.Credential(ctx)
		if err != nil {
			return Credential{}, errors.Trace(err)
		}
		c.mu.Lock()
		c.current = &cred
		c.mu.Unlock()
		return cred, nil
	})
	if err != nil {
		return Credential{}, errors.Trace(err)
	}
	return v.(Credential), nil
}

// Invalidate drops the cached credential, forcing the next caller to
// refresh.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}
