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
// built-in defaults, applies TRENCH_* environment variable overrides, and
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

// applyEnvOverrides reads well-known TRENCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRENCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRENCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRENCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRENCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRENCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRENCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRENCH_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRENCH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRENCH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRENCH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRENCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRENCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRENCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRENCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRENCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRENCH_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRENCH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRENCH_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRENCH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRENCH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRENCH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRENCH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRENCH_S3_FORCE_PATH_STYLE")

	// ── Treasury ──
	setStr(&cfg.Treasury.BaseURL, "TRENCH_TREASURY_BASE_URL")
	setStr(&cfg.Treasury.ApiKey, "TRENCH_TREASURY_API_KEY")

	// ── Price feed ──
	setBool(&cfg.PriceFeed.Enabled, "TRENCH_PRICE_FEED_ENABLED")
	setStr(&cfg.PriceFeed.WsURL, "TRENCH_PRICE_FEED_WS_URL")
	setStringSlice(&cfg.PriceFeed.Assets, "TRENCH_PRICE_FEED_ASSETS")

	// ── Settlement ──
	setDuration(&cfg.Settlement.TickInterval, "TRENCH_SETTLEMENT_TICK_INTERVAL")
	setDuration(&cfg.Settlement.ExpiryInterval, "TRENCH_SETTLEMENT_EXPIRY_INTERVAL")
	setInt(&cfg.Settlement.BatchSize, "TRENCH_SETTLEMENT_BATCH_SIZE")
	setDuration(&cfg.Settlement.LockTTL, "TRENCH_SETTLEMENT_LOCK_TTL")
	setDuration(&cfg.Settlement.PriceMaxAge, "TRENCH_SETTLEMENT_PRICE_MAX_AGE")
	setDuration(&cfg.Settlement.RateCacheTTL, "TRENCH_SETTLEMENT_RATE_CACHE_TTL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRENCH_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "TRENCH_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "TRENCH_ARCHIVE_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRENCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRENCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRENCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRENCH_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRENCH_MODE")
	setStr(&cfg.LogLevel, "TRENCH_LOG_LEVEL")
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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
