// Package feed keeps the pair cache warm from the live pair-update stream.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/solbot/internal/domain"
	"github.com/alanyoungcy/solbot/internal/observability"
	"github.com/alanyoungcy/solbot/internal/platform/dexscreener"
)

const (
	// reconnectDelay is the base delay before reconnecting.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	// connectTimeout bounds a single dial.
	connectTimeout = 15 * time.Second

	// stableAfter is how long a connection must live to reset the backoff.
	stableAfter = 30 * time.Second
)

// TokenHandler is called for every token whose snapshot was stored.
type TokenHandler func(ctx context.Context, token domain.TokenIdentifier)

// Config tunes a PairStream.
type Config struct {
	URL     string
	Chain   string
	TTL     time.Duration
	Window  int
	LockKey string
	LockTTL time.Duration
}

// PairStream consumes the pair feed and writes each on-chain update into
// the pair cache under the pair's base token. Feed failures only cost cache
// freshness; they never reach the evaluation pipeline.
type PairStream struct {
	cfg     Config
	cache   domain.PairCache
	locker  domain.LockManager
	onToken TokenHandler
	metrics *observability.Metrics
	logger  *slog.Logger
	backoff time.Duration
}

// NewPairStream creates a PairStream. locker may be nil, in which case the
// stream always runs; with a locker only the lease holder consumes.
func NewPairStream(cfg Config, cache domain.PairCache, locker domain.LockManager, metrics *observability.Metrics, logger *slog.Logger) *PairStream {
	if cfg.Chain == "" {
		cfg.Chain = domain.ChainSolana
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = domain.DefaultHistoryWindow
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "stream:" + cfg.Chain
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &PairStream{
		cfg:     cfg,
		cache:   cache,
		locker:  locker,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "pair_stream")),
		backoff: reconnectDelay,
	}
}

// OnToken registers a handler for stored tokens. Call before Run.
func (s *PairStream) OnToken(h TokenHandler) {
	s.onToken = h
}

// Run consumes the feed until ctx is cancelled.
func (s *PairStream) Run(ctx context.Context) error {
	if s.locker == nil {
		s.consume(ctx)
		return ctx.Err()
	}

	for {
		lease, err := s.lead(ctx)
		if err != nil {
			return err
		}

		leadCtx, cancel := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.keepLease(leadCtx, lease, cancel)
		}()

		s.consume(leadCtx)
		cancel()
		wg.Wait()
		lease.Release()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("stream lease lost, standing by")
	}
}

// lead blocks until this process holds the stream lease.
func (s *PairStream) lead(ctx context.Context) (domain.Lease, error) {
	retry := s.cfg.LockTTL / 2
	for {
		lease, err := s.locker.Acquire(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if err == nil {
			s.logger.Info("stream lease acquired", slog.String("key", s.cfg.LockKey))
			return lease, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			s.logger.Warn("stream lease acquire failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry):
		}
	}
}

// keepLease extends the lease every third of its TTL and calls lost when
// ownership cannot be confirmed.
func (s *PairStream) keepLease(ctx context.Context, lease domain.Lease, lost context.CancelFunc) {
	ticker := time.NewTicker(s.cfg.LockTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lease.Extend(ctx, s.cfg.LockTTL); err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("stream lease extend failed", slog.String("error", err.Error()))
					lost()
				}
				return
			}
		}
	}
}

// consume runs connections back to back with exponential backoff until ctx
// is done.
func (s *PairStream) consume(ctx context.Context) {
	for {
		started := time.Now()
		err := s.runConnection(ctx)
		if ctx.Err() != nil {
			return
		}

		if time.Since(started) >= stableAfter {
			s.backoff = reconnectDelay
		}
		s.metrics.RecordStreamReconnect()
		attrs := []any{slog.Duration("retry_in", s.backoff)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		s.logger.Warn("pair stream disconnected, reconnecting", attrs...)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.backoff):
		}
		s.backoff *= 2
		if s.backoff > maxReconnectDelay {
			s.backoff = maxReconnectDelay
		}
	}
}

func (s *PairStream) runConnection(ctx context.Context) error {
	client := dexscreener.NewWSClient(s.cfg.URL, s.cfg.Window)
	defer client.Close()

	client.OnPairUpdate(func(ev domain.PairEvent) {
		s.HandleEvent(ctx, ev)
	})
	client.OnMalformed(func(err error) {
		s.metrics.RecordStreamEvent("malformed")
		s.logger.Debug("dropped malformed frame", slog.String("error", err.Error()))
	})

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err := client.Connect(dialCtx)
	cancel()
	if err != nil {
		return err
	}
	s.logger.Info("pair stream connected", slog.String("chain", s.cfg.Chain))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-client.Done():
		return client.Err()
	}
}

// HandleEvent stores one feed event. Off-chain and malformed events are
// skipped; it never fails.
func (s *PairStream) HandleEvent(ctx context.Context, ev domain.PairEvent) {
	if !strings.EqualFold(ev.ChainID, s.cfg.Chain) {
		s.metrics.RecordStreamEvent("off_chain")
		return
	}

	token, err := domain.ParseTokenIdentifier(ev.TokenAddress)
	if err != nil {
		s.metrics.RecordStreamEvent("invalid")
		s.logger.Debug("skipped event with invalid token", slog.String("token", ev.TokenAddress))
		return
	}

	if err := s.cache.Put(ctx, token, ev.Snapshot.Normalize(s.cfg.Window), s.cfg.TTL); err != nil {
		s.metrics.RecordStreamEvent("error")
		s.logger.Warn("pair cache write failed",
			slog.String("token", token.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	s.metrics.RecordStreamEvent("stored")

	if s.onToken != nil {
		s.onToken(ctx, token)
	}
}
