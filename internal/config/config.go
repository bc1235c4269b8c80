// Package config defines the top-level configuration for solbot and provides
// validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SOLBOT_* environment variables.
type Config struct {
	Solana    SolanaConfig    `toml:"solana"`
	Market    MarketConfig    `toml:"market"`
	Cache     CacheConfig     `toml:"cache"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Redis     RedisConfig     `toml:"redis"`
	Safety    SafetyConfig    `toml:"safety"`
	Extract   ExtractConfig   `toml:"extract"`
	Alert     AlertConfig     `toml:"alert"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Stream    StreamConfig    `toml:"stream"`
	Chat      ChatConfig      `toml:"chat"`
	Notify    NotifyConfig    `toml:"notify"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Server    ServerConfig    `toml:"server"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// SolanaConfig holds the JSON-RPC endpoint used for holder lookups and swap
// simulation.
type SolanaConfig struct {
	RPCURL     string `toml:"rpc_url"`
	Commitment string `toml:"commitment"`
	// SwapTransaction is a signed, base64 wire-format transaction dry-run by
	// the swap simulation check.
	SwapTransaction string `toml:"swap_transaction"`
}

// MarketConfig holds the market data origin and venue filter.
type MarketConfig struct {
	DexScreenerURL string   `toml:"dexscreener_url"`
	Venues         []string `toml:"venues"`
	Timeout        duration `toml:"timeout"`
	HistoryWindow  int      `toml:"history_window"`
}

// CacheConfig selects and tunes the pair cache.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend       string   `toml:"backend"`
	TTL           duration `toml:"ttl"`
	SweepInterval duration `toml:"sweep_interval"`
}

// RateLimitConfig bounds origin calls to MaxCalls per trailing Period.
type RateLimitConfig struct {
	// Backend is "memory" or "redis". The redis limiter is shared by every
	// process using the same Key.
	Backend  string   `toml:"backend"`
	MaxCalls int      `toml:"max_calls"`
	Period   duration `toml:"period"`
	Key      string   `toml:"key"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL (redis:// or rediss://) takes precedence over the discrete fields.
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// SafetyConfig tunes the safety checks and their data sources.
type SafetyConfig struct {
	CheckTimeout   duration `toml:"check_timeout"`
	TopHolders     int      `toml:"top_holders"`
	MaxHolderShare float64  `toml:"max_holder_share"`
	RaydiumURL     string   `toml:"raydium_url"`
	LockField      string   `toml:"lock_field"`
	SolscanURL     string   `toml:"solscan_url"`
	SolscanAPIKey  string   `toml:"solscan_api_key"`
	FlagField      string   `toml:"flag_field"`
}

// ExtractConfig bounds token extraction from chat text.
type ExtractConfig struct {
	MaxTokens int `toml:"max_tokens"`
}

// AlertConfig holds the alert decision parameters.
type AlertConfig struct {
	Threshold float64 `toml:"threshold"`
}

// PipelineConfig bounds evaluation concurrency and shutdown.
type PipelineConfig struct {
	MaxConcurrent   int      `toml:"max_concurrent"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// StreamConfig configures the live pair feed.
type StreamConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Chain   string `toml:"chain"`
	// EvaluateUpdates submits every ingested token for evaluation.
	EvaluateUpdates bool `toml:"evaluate_updates"`
	// LockEnabled makes replicas elect a single stream consumer through a
	// Redis lease.
	LockEnabled bool     `toml:"lock_enabled"`
	LockTTL     duration `toml:"lock_ttl"`
}

// ChatConfig configures the inbound Telegram bot.
type ChatConfig struct {
	TelegramToken string   `toml:"telegram_token"`
	APIBase       string   `toml:"api_base"`
	AllowedChats  []int64  `toml:"allowed_chats"`
	PollTimeout   duration `toml:"poll_timeout"`
}

// NotifyConfig holds outbound notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	DiscordUsername   string   `toml:"discord_username"`
	Events            []string `toml:"events"`
}

// PostgresConfig holds the alert journal connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			RPCURL:     "https://api.mainnet-beta.solana.com",
			Commitment: "confirmed",
		},
		Market: MarketConfig{
			DexScreenerURL: "https://api.dexscreener.com",
			Venues:         []string{"raydium", "orca"},
			Timeout:        duration{15 * time.Second},
			HistoryWindow:  10,
		},
		Cache: CacheConfig{
			Backend:       "memory",
			TTL:           duration{10 * time.Minute},
			SweepInterval: duration{time.Minute},
		},
		RateLimit: RateLimitConfig{
			Backend:  "memory",
			MaxCalls: 30,
			Period:   duration{10 * time.Second},
			Key:      "dexscreener",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Safety: SafetyConfig{
			CheckTimeout:   duration{10 * time.Second},
			TopHolders:     3,
			MaxHolderShare: 0.10,
			RaydiumURL:     "https://api.raydium.io",
			LockField:      "liquidity_locked",
			SolscanURL:     "https://api.solscan.io",
			FlagField:      "isSlerf",
		},
		Extract: ExtractConfig{
			MaxTokens: 5,
		},
		Alert: AlertConfig{
			Threshold: 0.8,
		},
		Pipeline: PipelineConfig{
			MaxConcurrent:   16,
			ShutdownTimeout: duration{30 * time.Second},
		},
		Stream: StreamConfig{
			Enabled: true,
			URL:     "wss://io.dexscreener.com/dex/screener/pairs",
			Chain:   "solana",
			LockTTL: duration{30 * time.Second},
		},
		Chat: ChatConfig{
			APIBase:     "https://api.telegram.org",
			PollTimeout: duration{30 * time.Second},
		},
		Notify: NotifyConfig{
			DiscordUsername: "solbot",
			Events:          []string{"token_alert", "lifecycle"},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "solbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true,
	"chat":   true,
	"stream": true,
	"server": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"memory": true,
	"redis":  true,
}

var validCommitments = map[string]bool{
	"processed": true,
	"confirmed": true,
	"finalized": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, chat, stream, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Solana
	if c.Solana.RPCURL == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}
	if !validCommitments[strings.ToLower(c.Solana.Commitment)] {
		errs = append(errs, fmt.Sprintf("solana: unknown commitment %q", c.Solana.Commitment))
	}

	// Market
	if c.Market.DexScreenerURL == "" {
		errs = append(errs, "market: dexscreener_url must not be empty")
	}
	if len(c.Market.Venues) == 0 {
		errs = append(errs, "market: venues must list at least one venue")
	}
	if c.Market.HistoryWindow < 2 {
		errs = append(errs, "market: history_window must be >= 2")
	}

	// Cache and rate limiter
	if !validBackends[strings.ToLower(c.Cache.Backend)] {
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: memory, redis)", c.Cache.Backend))
	}
	if c.Cache.TTL.Duration <= 0 {
		errs = append(errs, "cache: ttl must be > 0")
	}
	if !validBackends[strings.ToLower(c.RateLimit.Backend)] {
		errs = append(errs, fmt.Sprintf("rate_limit: unknown backend %q (valid: memory, redis)", c.RateLimit.Backend))
	}
	if c.RateLimit.MaxCalls < 1 {
		errs = append(errs, "rate_limit: max_calls must be >= 1")
	}
	if c.RateLimit.Period.Duration <= 0 {
		errs = append(errs, "rate_limit: period must be > 0")
	}

	// Redis is only required when something uses it.
	if c.UsesRedis() {
		if c.Redis.Addr == "" && c.Redis.URL == "" {
			errs = append(errs, "redis: addr or url must be set")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Safety
	if c.Safety.TopHolders < 1 {
		errs = append(errs, "safety: top_holders must be >= 1")
	}
	if c.Safety.MaxHolderShare <= 0 || c.Safety.MaxHolderShare > 1 {
		errs = append(errs, fmt.Sprintf("safety: max_holder_share must be in (0, 1], got %g", c.Safety.MaxHolderShare))
	}

	if c.Extract.MaxTokens < 1 {
		errs = append(errs, "extract: max_tokens must be >= 1")
	}
	if c.Pipeline.MaxConcurrent < 1 {
		errs = append(errs, "pipeline: max_concurrent must be >= 1")
	}

	// Stream
	if c.Stream.Enabled && c.Stream.URL == "" {
		errs = append(errs, "stream: url must not be empty when enabled")
	}
	if c.Stream.LockEnabled && c.Stream.LockTTL.Duration < time.Second {
		errs = append(errs, "stream: lock_ttl must be >= 1s")
	}

	// Chat transport is required wherever messages are read.
	if (mode == "full" || mode == "chat") && c.Chat.TelegramToken == "" {
		errs = append(errs, "chat: telegram_token is required for mode "+c.Mode)
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Server
	if c.Server.Enabled || mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// UsesRedis reports whether any component is configured with the Redis
// backend.
func (c *Config) UsesRedis() bool {
	return strings.EqualFold(c.Cache.Backend, "redis") ||
		strings.EqualFold(c.RateLimit.Backend, "redis") ||
		(c.Stream.Enabled && c.Stream.LockEnabled)
}
