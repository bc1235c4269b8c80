package domain

import (
	"context"
	"time"
)

// PairCache maps a token to its last-known snapshot with a fixed TTL.
// Get reports ok=false for missing or expired entries; expired entries are
// never served.
type PairCache interface {
	Get(ctx context.Context, token TokenIdentifier) (PairSnapshot, bool, error)
	Put(ctx context.Context, token TokenIdentifier, snap PairSnapshot, ttl time.Duration) error
}

// RateLimiter bounds calls to external sources. Acquire blocks until a
// permit is available and only fails when ctx is done.
type RateLimiter interface {
	Acquire(ctx context.Context) error
}

// PairSource queries an origin for every trading pair of a token.
type PairSource interface {
	TokenPairs(ctx context.Context, token TokenIdentifier) ([]PairSnapshot, error)
}

// Lease is a held distributed lock. Extend pushes its expiry forward and
// fails with ErrLockHeld once ownership has been lost. Release is idempotent.
type Lease interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Release()
}

// LockManager hands out named leases shared between processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}
