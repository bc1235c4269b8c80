package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/solbot/internal/cache/memory"
	"github.com/alanyoungcy/solbot/internal/cache/redis"
	"github.com/alanyoungcy/solbot/internal/config"
	"github.com/alanyoungcy/solbot/internal/domain"
	"github.com/alanyoungcy/solbot/internal/extract"
	"github.com/alanyoungcy/solbot/internal/feed"
	"github.com/alanyoungcy/solbot/internal/marketdata"
	"github.com/alanyoungcy/solbot/internal/notify"
	"github.com/alanyoungcy/solbot/internal/observability"
	"github.com/alanyoungcy/solbot/internal/pipeline"
	"github.com/alanyoungcy/solbot/internal/platform/dexscreener"
	"github.com/alanyoungcy/solbot/internal/platform/raydium"
	"github.com/alanyoungcy/solbot/internal/platform/solrpc"
	"github.com/alanyoungcy/solbot/internal/platform/solscan"
	"github.com/alanyoungcy/solbot/internal/safety"
	"github.com/alanyoungcy/solbot/internal/scoring"
	"github.com/alanyoungcy/solbot/internal/server/handler"
	"github.com/alanyoungcy/solbot/internal/store/postgres"
)

// Dependencies bundles every component the operating modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Metrics *observability.Metrics

	// Caches and coordination
	PairCache   domain.PairCache
	Janitor     *memory.PairCache // set only for the in-process cache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Evaluation
	Fetcher    *marketdata.Fetcher
	Safety     *safety.Orchestrator
	Scoring    *scoring.Engine
	Dispatcher *notify.AlertDispatcher
	Pipeline   *pipeline.Pipeline

	// Persistence
	AlertStore domain.AlertStore

	// Notifications
	Notifier *notify.Notifier

	// Pingers are reported by the health endpoint.
	Pingers map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: observability.NewMetrics("solbot"),
		Pingers: map[string]handler.Pinger{},
	}

	// --- Redis (only when a component uses it) ---
	var redisClient *redis.Client
	if cfg.UsesRedis() {
		var err error
		redisClient, err = redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Pingers["redis"] = redisClient.Ping
	}

	// --- Pair cache ---
	if strings.EqualFold(cfg.Cache.Backend, "redis") {
		deps.PairCache = redis.NewPairCache(redisClient, cfg.Stream.Chain)
	} else {
		mem := memory.NewPairCache()
		deps.PairCache = mem
		deps.Janitor = mem
	}

	// --- Rate limiter ---
	if strings.EqualFold(cfg.RateLimit.Backend, "redis") {
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.RateLimit.Key, cfg.RateLimit.MaxCalls, cfg.RateLimit.Period.Duration)
	} else {
		deps.RateLimiter = memory.NewRateLimiter(cfg.RateLimit.MaxCalls, cfg.RateLimit.Period.Duration)
	}

	if cfg.Stream.Enabled && cfg.Stream.LockEnabled {
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// --- PostgreSQL alert journal ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.AlertStore = postgres.NewAlertStore(pgClient.Pool())
		deps.Pingers["postgres"] = pgClient.Ping
	}

	// --- Market data ---
	origin := dexscreener.NewClient(cfg.Market.DexScreenerURL, cfg.Market.HistoryWindow, cfg.Market.Timeout.Duration)
	deps.Fetcher = marketdata.NewFetcher(deps.PairCache, deps.RateLimiter, origin, marketdata.Config{
		TTL:           cfg.Cache.TTL.Duration,
		Venues:        cfg.Market.Venues,
		OriginTimeout: cfg.Market.Timeout.Duration,
	}, deps.Metrics, logger)

	// --- Safety checks ---
	rpcOpts := []solrpc.Option{solrpc.WithCommitment(rpc.CommitmentType(strings.ToLower(cfg.Solana.Commitment)))}
	if cfg.Solana.SwapTransaction != "" {
		tx, err := solrpc.DecodeTransaction(cfg.Solana.SwapTransaction)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: solana.swap_transaction: %w", err)
		}
		rpcOpts = append(rpcOpts, solrpc.WithSwapTransaction(tx))
	}
	rpcClient := solrpc.New(cfg.Solana.RPCURL, rpcOpts...)
	if !rpcClient.HasSwapTransaction() {
		logger.Warn("solana.swap_transaction is not set; the swap simulation check will fail every token")
	}

	deps.Safety = safety.NewOrchestrator(safety.Checks{
		HolderConcentration: safety.HolderConcentration(rpcClient, cfg.Safety.TopHolders, decimal.NewFromFloat(cfg.Safety.MaxHolderShare)),
		LiquidityLock:       safety.LiquidityLock(raydium.NewClient(cfg.Safety.RaydiumURL, cfg.Safety.LockField, cfg.Safety.CheckTimeout.Duration)),
		Reputation:          safety.Reputation(solscan.NewClient(cfg.Safety.SolscanURL, cfg.Safety.FlagField, cfg.Safety.SolscanAPIKey, cfg.Safety.CheckTimeout.Duration)),
		SwapSimulation:      safety.SwapSimulation(rpcClient),
	}, cfg.Safety.CheckTimeout.Duration, deps.Metrics, logger)

	deps.Scoring = scoring.NewEngine(cfg.Market.HistoryWindow)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Chat.APIBase,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, cfg.Notify.DiscordUsername))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	if deps.Notifier.Senders() == 0 {
		logger.Warn("no notification senders configured; alerts will only be logged")
	}

	deps.Dispatcher = notify.NewAlertDispatcher(deps.Notifier, cfg.Alert.Threshold, deps.AlertStore, deps.Metrics, logger)

	// --- Pipeline ---
	evaluator := pipeline.NewEvaluator(deps.Fetcher, deps.Safety, deps.Scoring, deps.Dispatcher, deps.Metrics, logger)
	deps.Pipeline = pipeline.New(extract.New(cfg.Extract.MaxTokens), evaluator, cfg.Pipeline.MaxConcurrent, logger)

	return deps, cleanup, nil
}

// newPairStream builds the live feed consumer. Ingested tokens are submitted
// for evaluation when stream.evaluate_updates is set.
func newPairStream(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *feed.PairStream {
	stream := feed.NewPairStream(feed.Config{
		URL:     cfg.Stream.URL,
		Chain:   cfg.Stream.Chain,
		TTL:     cfg.Cache.TTL.Duration,
		Window:  cfg.Market.HistoryWindow,
		LockTTL: cfg.Stream.LockTTL.Duration,
	}, deps.PairCache, deps.LockManager, deps.Metrics, logger)

	if cfg.Stream.EvaluateUpdates {
		stream.OnToken(func(ctx context.Context, token domain.TokenIdentifier) {
			deps.Pipeline.Submit(ctx, token)
		})
	}
	return stream
}
