package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solbot/internal/cache/memory"
	"github.com/alanyoungcy/solbot/internal/domain"
)

const (
	baseToken   = "So11111111111111111111111111111111111111112"
	pairAddress = "8sLbNZoA1cfnvMJLPfp98ZLAnFSYCFApfJKMbiXNLwxj"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPairStream_HandleEvent(t *testing.T) {
	cache := memory.NewPairCache()
	s := NewPairStream(Config{TTL: time.Minute}, cache, nil, nil, discardLogger())

	var seen []domain.TokenIdentifier
	s.OnToken(func(_ context.Context, tok domain.TokenIdentifier) {
		seen = append(seen, tok)
	})

	ctx := context.Background()
	s.HandleEvent(ctx, domain.PairEvent{
		ChainID:      "solana",
		TokenAddress: baseToken,
		Snapshot:     domain.PairSnapshot{ChainID: "solana", DexID: "raydium", PairAddress: pairAddress, Price: decimal.NewFromInt(2)},
	})
	s.HandleEvent(ctx, domain.PairEvent{ChainID: "ethereum", TokenAddress: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"})
	s.HandleEvent(ctx, domain.PairEvent{ChainID: "solana", TokenAddress: "short"})

	assert.Equal(t, 1, cache.Len())

	snap, ok, err := cache.Get(ctx, domain.TokenIdentifier(baseToken))
	require.NoError(t, err)
	require.True(t, ok, "snapshot is keyed by base token, not pair address")
	assert.Equal(t, pairAddress, snap.PairAddress)

	_, ok, _ = cache.Get(ctx, domain.TokenIdentifier(pairAddress))
	assert.False(t, ok)

	assert.Equal(t, []domain.TokenIdentifier{baseToken}, seen)
}

func TestPairStream_HandleEventTrimsHistory(t *testing.T) {
	cache := memory.NewPairCache()
	s := NewPairStream(Config{TTL: time.Minute, Window: 3}, cache, nil, nil, discardLogger())

	var snap domain.PairSnapshot
	for i := 0; i < 6; i++ {
		snap.PriceHistory = append(snap.PriceHistory, domain.HistoryPoint{At: time.Unix(int64(i), 0), Value: float64(i)})
	}
	s.HandleEvent(context.Background(), domain.PairEvent{ChainID: "solana", TokenAddress: baseToken, Snapshot: snap})

	got, ok, _ := cache.Get(context.Background(), domain.TokenIdentifier(baseToken))
	require.True(t, ok)
	assert.Equal(t, []float64{3, 4, 5}, got.Prices())
}

func feedServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPairStream_RunStoresFeedUpdates(t *testing.T) {
	srv := feedServer(t, []string{
		`garbage`,
		`{"pair":{"chainId":"solana","dexId":"raydium","address":"` + pairAddress + `","baseToken":{"address":"` + baseToken + `"},"priceUsd":"1.5"}}`,
	})

	cache := memory.NewPairCache()
	s := NewPairStream(Config{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), TTL: time.Minute}, cache, nil, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok, _ := cache.Get(context.Background(), domain.TokenIdentifier(baseToken))
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type fakeLease struct {
	mu       sync.Mutex
	released bool
}

func (l *fakeLease) Extend(context.Context, time.Duration) error { return nil }

func (l *fakeLease) Release() {
	l.mu.Lock()
	l.released = true
	l.mu.Unlock()
}

type fakeLocker struct {
	mu       sync.Mutex
	held     int
	acquired []*fakeLease
}

func (f *fakeLocker) Acquire(context.Context, string, time.Duration) (domain.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held > 0 {
		f.held--
		return nil, domain.ErrLockHeld
	}
	l := &fakeLease{}
	f.acquired = append(f.acquired, l)
	return l, nil
}

func TestPairStream_RunWaitsForLease(t *testing.T) {
	srv := feedServer(t, []string{
		`{"pair":{"chainId":"solana","dexId":"orca","address":"` + pairAddress + `","baseToken":{"address":"` + baseToken + `"}}}`,
	})

	cache := memory.NewPairCache()
	locker := &fakeLocker{held: 1}
	s := NewPairStream(Config{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		TTL:     time.Minute,
		LockTTL: 60 * time.Millisecond,
	}, cache, locker, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok, _ := cache.Get(context.Background(), domain.TokenIdentifier(baseToken))
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	locker.mu.Lock()
	defer locker.mu.Unlock()
	require.Len(t, locker.acquired, 1)
	locker.acquired[0].mu.Lock()
	assert.True(t, locker.acquired[0].released)
	locker.acquired[0].mu.Unlock()
}
