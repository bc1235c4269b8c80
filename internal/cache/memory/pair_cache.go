// Package memory implements the domain cache and rate-limiter interfaces
// in-process. It is the default backend when no Redis is configured.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/solbot/internal/domain"
)

// Option configures the in-memory components.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source. Tests use it to step time.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type pairEntry struct {
	snap       domain.PairSnapshot
	insertedAt time.Time
	ttl        time.Duration
}

// PairCache is a mutex-guarded map with lazy TTL expiry. Sweep (or
// RunJanitor) physically removes expired entries.
type PairCache struct {
	mu      sync.RWMutex
	entries map[domain.TokenIdentifier]pairEntry
	now     func() time.Time
}

// NewPairCache creates an empty PairCache.
func NewPairCache(opts ...Option) *PairCache {
	o := buildOptions(opts)
	return &PairCache{
		entries: make(map[domain.TokenIdentifier]pairEntry),
		now:     o.now,
	}
}

// Get returns the snapshot for token if it was stored less than its TTL ago.
func (c *PairCache) Get(_ context.Context, token domain.TokenIdentifier) (domain.PairSnapshot, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[token]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.insertedAt) >= e.ttl {
		return domain.PairSnapshot{}, false, nil
	}
	return e.snap.Clone(), true, nil
}

// Put stores snap for token, replacing any previous entry.
func (c *PairCache) Put(_ context.Context, token domain.TokenIdentifier, snap domain.PairSnapshot, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("memory: put pair %s: ttl must be positive, got %s", token, ttl)
	}

	e := pairEntry{snap: snap.Clone(), insertedAt: c.now(), ttl: ttl}

	c.mu.Lock()
	c.entries[token] = e
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *PairCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep deletes expired entries and returns how many were removed.
func (c *PairCache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for token, e := range c.entries {
		if now.Sub(e.insertedAt) >= e.ttl {
			delete(c.entries, token)
			removed++
		}
	}
	return removed
}

// RunJanitor calls Sweep every interval until ctx is cancelled.
func (c *PairCache) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Compile-time interface check.
var _ domain.PairCache = (*PairCache)(nil)
