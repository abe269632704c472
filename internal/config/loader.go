package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies environment overrides, and returns the final
// Config. An empty path skips the file. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from the environment. The
// variable names used by the original web deployment are read first so that
// MINIDICT_* always wins.
func applyEnvOverrides(cfg *Config) {
	// ── Deployment aliases ──
	setStr(&cfg.Builder.APIKey, "POLY_BUILDER_API_KEY")
	setStr(&cfg.Builder.Secret, "POLY_BUILDER_SECRET")
	setStr(&cfg.Builder.Passphrase, "POLY_BUILDER_PASSPHRASE")
	setStr(&cfg.Polymarket.ClobHost, "CLOB_HOST")
	setStr(&cfg.App.PublicURL, "NEXT_PUBLIC_URL")
	setInt(&cfg.Server.Port, "PORT")

	// ── Top-level ──
	setStr(&cfg.Mode, "MINIDICT_MODE")
	setStr(&cfg.LogLevel, "MINIDICT_LOG_LEVEL")

	// ── Log ──
	setStr(&cfg.Log.File, "MINIDICT_LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, "MINIDICT_LOG_MAX_SIZE_MB")
	setInt(&cfg.Log.MaxBackups, "MINIDICT_LOG_MAX_BACKUPS")
	setInt(&cfg.Log.MaxAgeDays, "MINIDICT_LOG_MAX_AGE_DAYS")
	setBool(&cfg.Log.Compress, "MINIDICT_LOG_COMPRESS")

	// ── App ──
	setStr(&cfg.App.PublicURL, "MINIDICT_APP_PUBLIC_URL")
	setStr(&cfg.App.AssociationHeader, "MINIDICT_APP_ASSOCIATION_HEADER")
	setStr(&cfg.App.AssociationPayload, "MINIDICT_APP_ASSOCIATION_PAYLOAD")
	setStr(&cfg.App.AssociationSignature, "MINIDICT_APP_ASSOCIATION_SIGNATURE")

	// ── Builder ──
	setStr(&cfg.Builder.APIKey, "MINIDICT_BUILDER_API_KEY")
	setStr(&cfg.Builder.Secret, "MINIDICT_BUILDER_SECRET")
	setStr(&cfg.Builder.Passphrase, "MINIDICT_BUILDER_PASSPHRASE")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "MINIDICT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "MINIDICT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.DataHost, "MINIDICT_POLYMARKET_DATA_HOST")
	setDuration(&cfg.Polymarket.HTTPTimeout, "MINIDICT_POLYMARKET_HTTP_TIMEOUT")

	// ── Chains ──
	setStr(&cfg.Chains.BaseRPC, "MINIDICT_CHAINS_BASE_RPC")
	setStr(&cfg.Chains.PolygonRPC, "MINIDICT_CHAINS_POLYGON_RPC")

	// ── Identity ──
	setStr(&cfg.Identity.Web3BioURL, "MINIDICT_IDENTITY_WEB3BIO_URL")
	setDuration(&cfg.Identity.Timeout, "MINIDICT_IDENTITY_TIMEOUT")

	// ── Cache ──
	setStr(&cfg.Cache.Backend, "MINIDICT_CACHE_BACKEND")
	setDuration(&cfg.Cache.BalancesTTL, "MINIDICT_CACHE_BALANCES_TTL")
	setDuration(&cfg.Cache.MarketsTTL, "MINIDICT_CACHE_MARKETS_TTL")
	setDuration(&cfg.Cache.EventsTTL, "MINIDICT_CACHE_EVENTS_TTL")
	setDuration(&cfg.Cache.TagsTTL, "MINIDICT_CACHE_TAGS_TTL")
	setDuration(&cfg.Cache.MarketTTL, "MINIDICT_CACHE_MARKET_LOOKUP_TTL")
	setDuration(&cfg.Cache.IdentityTTL, "MINIDICT_CACHE_IDENTITY_TTL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MINIDICT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MINIDICT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MINIDICT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MINIDICT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MINIDICT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MINIDICT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MINIDICT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "MINIDICT_REDIS_KEY_PREFIX")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MINIDICT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "MINIDICT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "MINIDICT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MINIDICT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MINIDICT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MINIDICT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MINIDICT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MINIDICT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MINIDICT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MINIDICT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MINIDICT_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "MINIDICT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MINIDICT_S3_REGION")
	setStr(&cfg.S3.Bucket, "MINIDICT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MINIDICT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MINIDICT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MINIDICT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MINIDICT_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "MINIDICT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "MINIDICT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "MINIDICT_ARCHIVE_INTERVAL")

	// ── Server ──
	setInt(&cfg.Server.Port, "MINIDICT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MINIDICT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MINIDICT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "MINIDICT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "MINIDICT_SERVER_RATE_WINDOW")
	setStringSlice(&cfg.Server.TrustedProxies, "MINIDICT_SERVER_TRUSTED_PROXIES")
	setStringSlice(&cfg.Server.WSOrigins, "MINIDICT_SERVER_WS_ORIGINS")
	setDuration(&cfg.Server.WSRPCTimeout, "MINIDICT_SERVER_WS_RPC_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "MINIDICT_SERVER_SHUTDOWN_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MINIDICT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MINIDICT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.TelegramAPI, "MINIDICT_NOTIFY_TELEGRAM_API")
	setStr(&cfg.Notify.DiscordWebhookURL, "MINIDICT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MINIDICT_NOTIFY_EVENTS")
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
