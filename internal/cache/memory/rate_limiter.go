package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/solbot/internal/domain"
)

// RateLimiter is a sliding-window limiter: at most maxCalls admissions in
// any trailing period. Callers over the limit sleep until the oldest
// admission ages out of the window.
type RateLimiter struct {
	maxCalls int
	period   time.Duration
	now      func() time.Time

	mu    sync.Mutex
	calls []time.Time // admission times, oldest first
}

// NewRateLimiter creates a RateLimiter admitting maxCalls per period.
func NewRateLimiter(maxCalls int, period time.Duration, opts ...Option) *RateLimiter {
	if maxCalls < 1 {
		maxCalls = 1
	}
	o := buildOptions(opts)
	return &RateLimiter{
		maxCalls: maxCalls,
		period:   period,
		now:      o.now,
		calls:    make([]time.Time, 0, maxCalls),
	}
}

// Acquire blocks until a permit is granted. It only returns an error when
// ctx is done before admission.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("memory: rate limiter acquire: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// tryAcquire admits the caller if the window has room; otherwise it returns
// how long until the oldest admission leaves the window.
func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	expired := 0
	for expired < len(rl.calls) && now.Sub(rl.calls[expired]) >= rl.period {
		expired++
	}
	if expired > 0 {
		rl.calls = append(rl.calls[:0], rl.calls[expired:]...)
	}

	if len(rl.calls) < rl.maxCalls {
		rl.calls = append(rl.calls, now)
		return 0, true
	}

	wait := rl.period - now.Sub(rl.calls[0])
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// InFlight returns the number of admissions currently inside the window.
func (rl *RateLimiter) InFlight() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	n := 0
	for _, t := range rl.calls {
		if now.Sub(t) < rl.period {
			n++
		}
	}
	return n
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
