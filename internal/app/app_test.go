package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/solbot/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWire_MemoryBackends(t *testing.T) {
	cfg := config.Defaults()

	deps, cleanup, err := Wire(context.Background(), &cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Janitor, "in-process cache gets a janitor")
	assert.Nil(t, deps.LockManager)
	assert.Nil(t, deps.AlertStore)
	assert.NotNil(t, deps.Pipeline)
	assert.Empty(t, deps.Pingers)
	assert.NoError(t, deps.Pipeline.Wait(0))
}

func TestWire_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Defaults()
	cfg.Redis.Addr = mr.Addr()
	cfg.Cache.Backend = "redis"
	cfg.RateLimit.Backend = "redis"
	cfg.Stream.LockEnabled = true

	deps, cleanup, err := Wire(context.Background(), &cfg, discardLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.Janitor)
	assert.NotNil(t, deps.LockManager)
	require.Contains(t, deps.Pingers, "redis")
	assert.NoError(t, deps.Pingers["redis"](context.Background()))
}

func TestWire_RejectsBadSwapTransaction(t *testing.T) {
	cfg := config.Defaults()
	cfg.Solana.SwapTransaction = "not base64 !!"

	_, _, err := Wire(context.Background(), &cfg, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "swap_transaction")
}

func TestIgnoreCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	boom := errors.New("boom")

	assert.Equal(t, boom, ignoreCancel(ctx, boom))
	cancel()
	assert.NoError(t, ignoreCancel(ctx, context.Canceled))
	assert.NoError(t, ignoreCancel(ctx, nil))
}
