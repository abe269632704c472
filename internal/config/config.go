// Package config defines the top-level configuration for the minidict
// backend and provides validation helpers.
package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MINIDICT_* environment variables.
type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`

	Log        LogConfig        `toml:"log"`
	App        AppConfig        `toml:"app"`
	Builder    BuilderConfig    `toml:"builder"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Chains     ChainsConfig     `toml:"chains"`
	Identity   IdentityConfig   `toml:"identity"`
	Cache      CacheConfig      `toml:"cache"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
}

// LogConfig controls the optional rotating log file. Logs always go to
// stdout; File adds a second sink.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// AppConfig describes the public mini app.
type AppConfig struct {
	PublicURL            string `toml:"public_url"`
	AssociationHeader    string `toml:"association_header"`
	AssociationPayload   string `toml:"association_payload"`
	AssociationSignature string `toml:"association_signature"`
}

// BuilderConfig holds Polymarket builder-program API credentials.
type BuilderConfig struct {
	APIKey     string `toml:"api_key"`
	Secret     string `toml:"secret"`
	Passphrase string `toml:"passphrase"`
}

// Configured reports whether all three credentials are present.
func (b BuilderConfig) Configured() bool {
	return b.APIKey != "" && b.Secret != "" && b.Passphrase != ""
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	ClobHost    string   `toml:"clob_host"`
	GammaHost   string   `toml:"gamma_host"`
	DataHost    string   `toml:"data_host"`
	HTTPTimeout duration `toml:"http_timeout"`
}

// ChainsConfig holds JSON-RPC endpoints.
type ChainsConfig struct {
	BaseRPC    string `toml:"base_rpc"`
	PolygonRPC string `toml:"polygon_rpc"`
}

// IdentityConfig configures profile resolution.
type IdentityConfig struct {
	Web3BioURL string   `toml:"web3bio_url"`
	Timeout    duration `toml:"timeout"`
}

// CacheConfig selects the response cache and its lifetimes.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend      string   `toml:"backend"`
	BalancesTTL  duration `toml:"balances_ttl"`
	MarketsTTL   duration `toml:"markets_ttl"`
	EventsTTL    duration `toml:"events_ttl"`
	TagsTTL      duration `toml:"tags_ttl"`
	MarketTTL    duration `toml:"market_lookup_ttl"`
	IdentityTTL  duration `toml:"identity_ttl"`
	CleanupEvery duration `toml:"cleanup_interval"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection parameters for the audit log.
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls moving old audit rows to S3.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateWindow      duration `toml:"rate_window"`
	TrustedProxies  []string `toml:"trusted_proxies"`
	WSOrigins       []string `toml:"ws_origins"`
	WSRPCTimeout    duration `toml:"ws_rpc_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	TelegramAPI       string   `toml:"telegram_api"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
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
		Mode:     "serve",
		LogLevel: "info",
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		App: AppConfig{
			PublicURL: "https://minidict.app",
		},
		Polymarket: PolymarketConfig{
			ClobHost:    "https://clob.polymarket.com",
			GammaHost:   "https://gamma-api.polymarket.com",
			DataHost:    "https://data-api.polymarket.com",
			HTTPTimeout: duration{30 * time.Second},
		},
		Chains: ChainsConfig{
			BaseRPC:    "https://mainnet.base.org",
			PolygonRPC: "https://polygon-rpc.com",
		},
		Identity: IdentityConfig{
			Web3BioURL: "https://api.web3.bio",
			Timeout:    duration{5 * time.Second},
		},
		Cache: CacheConfig{
			Backend:      "memory",
			BalancesTTL:  duration{15 * time.Second},
			MarketsTTL:   duration{30 * time.Second},
			EventsTTL:    duration{60 * time.Second},
			TagsTTL:      duration{time.Hour},
			MarketTTL:    duration{5 * time.Minute},
			IdentityTTL:  duration{10 * time.Minute},
			CleanupEvery: duration{time.Minute},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "minidict:",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "minidict-archive",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Port:            3000,
			CORSOrigins:     []string{"*"},
			RateLimit:       120,
			RateWindow:      duration{time.Minute},
			WSRPCTimeout:    duration{2 * time.Minute},
			ShutdownTimeout: duration{15 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"order.placed", "order.failed"},
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Endpoints
	for _, u := range []struct{ name, value string }{
		{"app.public_url", c.App.PublicURL},
		{"polymarket.clob_host", c.Polymarket.ClobHost},
		{"polymarket.gamma_host", c.Polymarket.GammaHost},
		{"polymarket.data_host", c.Polymarket.DataHost},
		{"chains.base_rpc", c.Chains.BaseRPC},
		{"chains.polygon_rpc", c.Chains.PolygonRPC},
		{"identity.web3bio_url", c.Identity.Web3BioURL},
	} {
		if err := checkURL(u.value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", u.name, err))
		}
	}

	// Builder: all three fields must be set together, or all empty.
	bk := c.Builder.APIKey != ""
	bs := c.Builder.Secret != ""
	bp := c.Builder.Passphrase != ""
	if (bk || bs || bp) && !(bk && bs && bp) {
		errs = append(errs, "builder: api_key, secret, and passphrase must all be set together")
	}

	if c.Identity.Timeout.Duration <= 0 {
		errs = append(errs, "identity: timeout must be > 0")
	}

	// Cache
	switch strings.ToLower(c.Cache.Backend) {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, "cache: backend redis requires redis.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: memory, redis)", c.Cache.Backend))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
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
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Archive
	archiving := c.Archive.Enabled || strings.EqualFold(c.Mode, "archive")
	if archiving {
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: requires postgres.enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
	}
	for _, p := range c.Server.TrustedProxies {
		if !validProxy(p) {
			errs = append(errs, fmt.Sprintf("server: trusted_proxies entry %q is not an IP or CIDR", p))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func checkURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func validProxy(s string) bool {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}
