package redis

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/solbot/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// RateLimiter implements domain.RateLimiter with a sliding window kept in a
// Redis sorted set, so every process sharing the key shares one budget.
// A caller over the limit sleeps until the oldest admission ages out.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
	key           string
	limit         int
	window        time.Duration
	now           func() time.Time
}

// NewRateLimiter creates a RateLimiter admitting limit calls per window
// under the given key.
func NewRateLimiter(c *Client, key string, limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RateLimiter{
		rdb:           c.Underlying(),
		slidingWindow: redis.NewScript(slidingWindowLua),
		key:           key,
		limit:         limit,
		window:        window,
		now:           time.Now,
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// allow runs one admission attempt. When the window is full it returns the
// time until the oldest admission leaves it.
func (rl *RateLimiter) allow(ctx context.Context) (bool, time.Duration, error) {
	now := rl.now().UnixMicro()
	windowMicro := rl.window.Microseconds()

	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rateLimitKey(rl.key)},
		strconv.FormatInt(now, 10),
		strconv.FormatInt(now-windowMicro, 10),
		rl.limit,
		uuid.NewString(),
		rl.window.Milliseconds()+1000,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit allow %s: %w", rl.key, err)
	}
	if len(result) < 2 {
		return false, 0, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", rl.key, len(result))
	}
	if result[0] == 1 {
		return true, 0, nil
	}

	wait := time.Duration(windowMicro-(now-result[1])) * time.Microsecond
	if wait <= 0 {
		wait = time.Millisecond
	}
	return false, wait, nil
}

// Acquire blocks until the shared window admits the caller. Redis errors are
// retried after a short pause; only ctx cancellation ends the wait.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	for {
		allowed, wait, err := rl.allow(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("redis: rate limit acquire %s: %w", rl.key, ctx.Err())
			}
			wait = 100 * time.Millisecond
		} else if allowed {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit acquire %s: %w", rl.key, ctx.Err())
		case <-timer.C:
		}
	}
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
