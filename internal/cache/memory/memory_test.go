package memory

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solbot/internal/domain"
)

const testToken = domain.TokenIdentifier("So11111111111111111111111111111111111111112")

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestPairCache_GetAfterPut(t *testing.T) {
	clock := newFakeClock()
	cache := NewPairCache(WithClock(clock.Now))
	ctx := context.Background()

	snap := domain.PairSnapshot{ChainID: domain.ChainSolana, DexID: "raydium", Price: decimal.RequireFromString("1.25")}
	require.NoError(t, cache.Put(ctx, testToken, snap, 10*time.Minute))

	got, ok, err := cache.Get(ctx, testToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "raydium", got.DexID)
	assert.True(t, got.Price.Equal(snap.Price))

	clock.Advance(10*time.Minute - time.Nanosecond)
	_, ok, _ = cache.Get(ctx, testToken)
	assert.True(t, ok, "entry must be served just before ttl")

	clock.Advance(time.Nanosecond)
	_, ok, _ = cache.Get(ctx, testToken)
	assert.False(t, ok, "entry must be absent at ttl")

	clock.Advance(time.Hour)
	_, ok, _ = cache.Get(ctx, testToken)
	assert.False(t, ok, "expiry is monotonic")
}

func TestPairCache_MissingKey(t *testing.T) {
	cache := NewPairCache()
	_, ok, err := cache.Get(context.Background(), testToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPairCache_LastWriteWins(t *testing.T) {
	cache := NewPairCache()
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, testToken, domain.PairSnapshot{DexID: "orca"}, time.Minute))
	require.NoError(t, cache.Put(ctx, testToken, domain.PairSnapshot{DexID: "raydium"}, time.Minute))

	got, ok, err := cache.Get(ctx, testToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "raydium", got.DexID)
}

func TestPairCache_PutRejectsNonPositiveTTL(t *testing.T) {
	cache := NewPairCache()
	assert.Error(t, cache.Put(context.Background(), testToken, domain.PairSnapshot{}, 0))
}

func TestPairCache_StoredSnapshotIsIsolated(t *testing.T) {
	cache := NewPairCache()
	ctx := context.Background()

	snap := domain.PairSnapshot{PriceHistory: []domain.HistoryPoint{{Value: 1}}}
	require.NoError(t, cache.Put(ctx, testToken, snap, time.Minute))
	snap.PriceHistory[0].Value = 99

	got, _, _ := cache.Get(ctx, testToken)
	assert.Equal(t, 1.0, got.PriceHistory[0].Value)
}

func TestPairCache_Sweep(t *testing.T) {
	clock := newFakeClock()
	cache := NewPairCache(WithClock(clock.Now))
	ctx := context.Background()

	other := domain.TokenIdentifier("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.NoError(t, cache.Put(ctx, testToken, domain.PairSnapshot{}, time.Minute))
	require.NoError(t, cache.Put(ctx, other, domain.PairSnapshot{}, time.Hour))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, cache.Sweep())
	assert.Equal(t, 1, cache.Len())
}

func TestPairCache_ConcurrentAccess(t *testing.T) {
	cache := NewPairCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = cache.Put(ctx, testToken, domain.PairSnapshot{DexID: "raydium"}, time.Minute)
		}()
		go func() {
			defer wg.Done()
			_, _, _ = cache.Get(ctx, testToken)
		}()
	}
	wg.Wait()

	_, ok, _ := cache.Get(ctx, testToken)
	assert.True(t, ok)
}

func TestRateLimiter_DelaysCallOverLimit(t *testing.T) {
	const (
		maxCalls = 3
		period   = 200 * time.Millisecond
	)
	rl := NewRateLimiter(maxCalls, period)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < maxCalls; i++ {
		require.NoError(t, rl.Acquire(ctx))
	}
	assert.Less(t, time.Since(start), period/2, "first max_calls admissions must not wait")

	require.NoError(t, rl.Acquire(ctx))
	assert.GreaterOrEqual(t, time.Since(start), period-10*time.Millisecond)
}

func TestRateLimiter_SlidingWindowInvariant(t *testing.T) {
	const (
		maxCalls = 4
		period   = 100 * time.Millisecond
		callers  = 12
	)
	rl := NewRateLimiter(maxCalls, period)
	ctx := context.Background()

	var (
		mu       sync.Mutex
		admitted []time.Time
		wg       sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, rl.Acquire(ctx))
			mu.Lock()
			admitted = append(admitted, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, admitted, callers)
	sort.Slice(admitted, func(i, j int) bool { return admitted[i].Before(admitted[j]) })
	for i := 0; i+maxCalls < len(admitted); i++ {
		gap := admitted[i+maxCalls].Sub(admitted[i])
		assert.GreaterOrEqual(t, gap, period-15*time.Millisecond,
			"admissions %d and %d are inside one window", i, i+maxCalls)
	}
}

func TestRateLimiter_AcquireHonoursContext(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	require.NoError(t, rl.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter_WindowSlidesWithClock(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(2, time.Second, WithClock(clock.Now))

	_, ok := rl.tryAcquire()
	require.True(t, ok)
	clock.Advance(600 * time.Millisecond)
	_, ok = rl.tryAcquire()
	require.True(t, ok)

	wait, ok := rl.tryAcquire()
	require.False(t, ok)
	assert.Equal(t, 400*time.Millisecond, wait)

	clock.Advance(400 * time.Millisecond)
	_, ok = rl.tryAcquire()
	assert.True(t, ok)
	assert.Equal(t, 2, rl.InFlight())
}
