// Package marketdata resolves a token to its pair snapshot, reading through
// the pair cache and falling back to a rate-limited origin query.
package marketdata

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/solbot/internal/domain"
	"github.com/alanyoungcy/solbot/internal/observability"
)

// DefaultVenues is the venue allow-list used when none is configured.
var DefaultVenues = []string{"raydium", "orca"}

// Config tunes a Fetcher.
type Config struct {
	TTL           time.Duration
	Venues        []string
	OriginTimeout time.Duration
}

// Fetcher is the read-through market data resolver. The limiter is only
// consulted on a cache miss.
type Fetcher struct {
	cache   domain.PairCache
	limiter domain.RateLimiter
	origin  domain.PairSource
	ttl     time.Duration
	venues  map[string]struct{}
	timeout time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher. metrics may be nil.
func NewFetcher(cache domain.PairCache, limiter domain.RateLimiter, origin domain.PairSource, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Fetcher {
	venues := cfg.Venues
	if len(venues) == 0 {
		venues = DefaultVenues
	}
	allowed := make(map[string]struct{}, len(venues))
	for _, v := range venues {
		allowed[strings.ToLower(v)] = struct{}{}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	return &Fetcher{
		cache:   cache,
		limiter: limiter,
		origin:  origin,
		ttl:     ttl,
		venues:  allowed,
		timeout: cfg.OriginTimeout,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "marketdata")),
	}
}

// Resolve returns the snapshot for token. It reports ok=false when the
// origin has no pair on an allowed venue or cannot be reached; those are
// logged, never returned.
func (f *Fetcher) Resolve(ctx context.Context, token domain.TokenIdentifier) (domain.PairSnapshot, bool) {
	snap, hit, err := f.cache.Get(ctx, token)
	if err != nil {
		f.logger.Warn("pair cache read failed",
			slog.String("token", token.String()),
			slog.String("error", err.Error()),
		)
	}
	f.metrics.RecordCacheLookup(hit)
	if hit {
		return snap, true
	}

	snap, err = f.fetch(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNoMatchingVenue) {
			f.logger.Debug("no pair on allowed venues", slog.String("token", token.String()))
		} else {
			f.logger.Warn("origin lookup failed",
				slog.String("token", token.String()),
				slog.String("error", err.Error()),
			)
		}
		return domain.PairSnapshot{}, false
	}

	if err := f.cache.Put(ctx, token, snap, f.ttl); err != nil {
		f.logger.Warn("pair cache write failed",
			slog.String("token", token.String()),
			slog.String("error", err.Error()),
		)
	}
	return snap, true
}

// fetch waits for a permit, queries the origin and picks the first pair on
// an allowed venue in source order.
func (f *Fetcher) fetch(ctx context.Context, token domain.TokenIdentifier) (domain.PairSnapshot, error) {
	waitStart := time.Now()
	if err := f.limiter.Acquire(ctx); err != nil {
		return domain.PairSnapshot{}, err
	}
	f.metrics.RecordLimiterWait(time.Since(waitStart))

	callCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := time.Now()
	pairs, err := f.origin.TokenPairs(callCtx, token)
	if err != nil {
		f.metrics.RecordOrigin("error", time.Since(start))
		return domain.PairSnapshot{}, err
	}

	for _, p := range pairs {
		if _, ok := f.venues[strings.ToLower(p.DexID)]; ok {
			f.metrics.RecordOrigin("ok", time.Since(start))
			return p, nil
		}
	}
	f.metrics.RecordOrigin("no_match", time.Since(start))
	return domain.PairSnapshot{}, domain.ErrNoMatchingVenue
}
