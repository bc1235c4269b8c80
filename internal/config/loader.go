package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SOLBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SOLBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, "SOLBOT_SOLANA_RPC_URL")
	setStr(&cfg.Solana.Commitment, "SOLBOT_SOLANA_COMMITMENT")
	setStr(&cfg.Solana.SwapTransaction, "SOLBOT_SOLANA_SWAP_TRANSACTION")

	// ── Market ──
	setStr(&cfg.Market.DexScreenerURL, "SOLBOT_MARKET_DEXSCREENER_URL")
	setStringSlice(&cfg.Market.Venues, "SOLBOT_MARKET_VENUES")
	setDuration(&cfg.Market.Timeout, "SOLBOT_MARKET_TIMEOUT")
	setInt(&cfg.Market.HistoryWindow, "SOLBOT_MARKET_HISTORY_WINDOW")

	// ── Cache / rate limit ──
	setStr(&cfg.Cache.Backend, "SOLBOT_CACHE_BACKEND")
	setDuration(&cfg.Cache.TTL, "SOLBOT_CACHE_TTL")
	setStr(&cfg.RateLimit.Backend, "SOLBOT_RATE_LIMIT_BACKEND")
	setInt(&cfg.RateLimit.MaxCalls, "SOLBOT_RATE_LIMIT_MAX_CALLS")
	setDuration(&cfg.RateLimit.Period, "SOLBOT_RATE_LIMIT_PERIOD")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "SOLBOT_REDIS_URL")
	setStr(&cfg.Redis.Addr, "SOLBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SOLBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SOLBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SOLBOT_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "SOLBOT_REDIS_TLS_ENABLED")

	// ── Safety ──
	setDuration(&cfg.Safety.CheckTimeout, "SOLBOT_SAFETY_CHECK_TIMEOUT")
	setStr(&cfg.Safety.RaydiumURL, "SOLBOT_SAFETY_RAYDIUM_URL")
	setStr(&cfg.Safety.SolscanURL, "SOLBOT_SAFETY_SOLSCAN_URL")
	setStr(&cfg.Safety.SolscanAPIKey, "SOLBOT_SAFETY_SOLSCAN_API_KEY")

	// ── Evaluation ──
	setInt(&cfg.Extract.MaxTokens, "SOLBOT_EXTRACT_MAX_TOKENS")
	setFloat64(&cfg.Alert.Threshold, "SOLBOT_ALERT_THRESHOLD")
	setInt(&cfg.Pipeline.MaxConcurrent, "SOLBOT_PIPELINE_MAX_CONCURRENT")

	// ── Stream ──
	setBool(&cfg.Stream.Enabled, "SOLBOT_STREAM_ENABLED")
	setStr(&cfg.Stream.URL, "SOLBOT_STREAM_URL")
	setBool(&cfg.Stream.EvaluateUpdates, "SOLBOT_STREAM_EVALUATE_UPDATES")
	setBool(&cfg.Stream.LockEnabled, "SOLBOT_STREAM_LOCK_ENABLED")

	// ── Chat ──
	setStr(&cfg.Chat.TelegramToken, "SOLBOT_CHAT_TELEGRAM_TOKEN")
	setInt64Slice(&cfg.Chat.AllowedChats, "SOLBOT_CHAT_ALLOWED_CHATS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SOLBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SOLBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SOLBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SOLBOT_NOTIFY_EVENTS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SOLBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SOLBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SOLBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SOLBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SOLBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SOLBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SOLBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SOLBOT_POSTGRES_SSL_MODE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SOLBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SOLBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SOLBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SOLBOT_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "SOLBOT_MODE")
	setStr(&cfg.LogLevel, "SOLBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		if cleaned := splitList(v); len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// setInt64Slice replaces dst only when every element parses.
func setInt64Slice(dst *[]int64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := splitList(v)
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return
		}
		out = append(out, n)
	}
	if len(out) > 0 {
		*dst = out
	}
}
