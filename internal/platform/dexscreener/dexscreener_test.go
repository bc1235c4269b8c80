package dexscreener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solbot/internal/domain"
)

const testToken = domain.TokenIdentifier("So11111111111111111111111111111111111111112")

const tokensBody = `{
  "schemaVersion": "1.0.0",
  "pairs": [
    {
      "chainId": "solana",
      "dexId": "meteora",
      "pairAddress": "PairMeteora1111111111111111111111111111111",
      "baseToken": {"address": "So11111111111111111111111111111111111111112", "symbol": "SOL"},
      "priceUsd": "1.01",
      "liquidity": {"usd": 5000}
    },
    {
      "chainId": "solana",
      "dexId": "raydium",
      "pairAddress": "PairRaydium1111111111111111111111111111111",
      "baseToken": {"address": "So11111111111111111111111111111111111111112", "symbol": "SOL"},
      "priceUsd": "1.0000",
      "liquidity": {"usd": 1234567.89},
      "priceHistory": [
        {"timestamp": 1700000002000, "priceUsd": "1.1"},
        {"timestamp": 1700000001000, "priceUsd": 1.0}
      ],
      "volumeHistory": [
        {"timestamp": 1700000001000, "volume": 100},
        {"timestamp": 1700000002000, "volume": "110"}
      ]
    }
  ]
}`

func TestClient_TokenPairs(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(tokensBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 10, time.Second)
	pairs, err := c.TokenPairs(context.Background(), testToken)
	require.NoError(t, err)

	assert.Equal(t, "/latest/dex/tokens/"+string(testToken), gotPath)
	require.Len(t, pairs, 2)
	assert.Equal(t, "meteora", pairs[0].DexID, "source order is preserved")

	ray := pairs[1]
	assert.Equal(t, "raydium", ray.DexID)
	assert.Equal(t, "PairRaydium1111111111111111111111111111111", ray.PairAddress)
	assert.Equal(t, string(testToken), ray.BaseToken)
	assert.Equal(t, "1234567.89", ray.Liquidity.String())
	assert.Equal(t, []float64{1.0, 1.1}, ray.Prices(), "history is ordered oldest-first")
	assert.Equal(t, []float64{100, 110}, ray.Volumes())
}

func TestClient_TokenPairs_NullPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"schemaVersion":"1.0.0","pairs":null}`))
	}))
	defer srv.Close()

	pairs, err := NewClient(srv.URL, 10, time.Second).TokenPairs(context.Background(), testToken)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestClient_TokenPairs_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 10, time.Second).TokenPairs(context.Background(), testToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestAPIPair_ToDomainTrimsHistory(t *testing.T) {
	p := APIPair{ChainID: "solana"}
	for i := 0; i < 15; i++ {
		p.PriceHistory = append(p.PriceHistory, APIPricePoint{Timestamp: int64(1000 * (i + 1)), PriceUSD: flexFloat(i)})
	}

	snap := p.ToDomain(10, time.Now())
	require.Len(t, snap.PriceHistory, 10)
	assert.Equal(t, 5.0, snap.PriceHistory[0].Value)
	assert.Equal(t, 14.0, snap.PriceHistory[9].Value)
}

func newFeedServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestWSClient_DispatchesPairsAndDropsMalformed(t *testing.T) {
	frames := []string{
		`{"pair":{"chainId":"solana","dexId":"raydium","address":"PairA","baseToken":{"address":"TokenA"},"priceUsd":"2"}}`,
		`not json`,
		`{"pairs":[{"chainId":"ethereum","dexId":"uniswap","baseToken":{"address":"TokenB"}},{"chainId":"solana","dexId":"orca","baseToken":{"address":"TokenC"}}]}`,
		`{}`,
	}
	srv := newFeedServer(t, frames)
	defer srv.Close()

	client := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), 10)

	var (
		mu        sync.Mutex
		events    []domain.PairEvent
		malformed int
	)
	client.OnPairUpdate(func(ev domain.PairEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	client.OnMalformed(func(error) {
		mu.Lock()
		malformed++
		mu.Unlock()
	})

	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 3 && malformed == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "TokenA", events[0].TokenAddress)
	assert.Equal(t, "PairA", events[0].Snapshot.PairAddress)
	assert.Equal(t, "ethereum", events[1].ChainID)
	assert.Equal(t, "TokenC", events[2].TokenAddress)
}

func TestWSClient_DoneOnServerClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	client := NewWSClient("ws"+strings.TrimPrefix(srv.URL, "http"), 10)
	require.NoError(t, client.Connect(context.Background()))

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not observe the disconnect")
	}
	assert.ErrorIs(t, client.Err(), domain.ErrWSDisconnect)
}
