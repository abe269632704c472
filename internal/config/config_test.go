package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, 30*time.Second, cfg.Polymarket.HTTPTimeout.Duration)
	assert.Equal(t, time.Hour, cfg.Cache.TagsTTL.Duration)
	assert.False(t, cfg.Builder.Configured())
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
log_level = "debug"

[polymarket]
clob_host = "https://clob.example.com"

[cache]
markets_ttl = "45s"

[server]
port = 8080
cors_origins = ["https://minidict.app"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://clob.example.com", cfg.Polymarket.ClobHost)
	assert.Equal(t, "https://gamma-api.polymarket.com", cfg.Polymarket.GammaHost)
	assert.Equal(t, 45*time.Second, cfg.Cache.MarketsTTL.Duration)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"https://minidict.app"}, cfg.Server.CORSOrigins)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("MINIDICT_SERVER_PORT", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().Server.Port, cfg.Server.Port)
}

func TestLoad_BadFile(t *testing.T) {
	_, err := Load(writeTOML(t, "mode = ["))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POLY_BUILDER_API_KEY", "alias-key")
	t.Setenv("POLY_BUILDER_SECRET", "alias-secret")
	t.Setenv("POLY_BUILDER_PASSPHRASE", "alias-pass")
	t.Setenv("MINIDICT_BUILDER_API_KEY", "native-key")
	t.Setenv("CLOB_HOST", "https://clob.alias.example")
	t.Setenv("NEXT_PUBLIC_URL", "https://preview.minidict.app")
	t.Setenv("MINIDICT_CACHE_TAGS_TTL", "10m")
	t.Setenv("MINIDICT_REDIS_ENABLED", "true")
	t.Setenv("MINIDICT_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("MINIDICT_SERVER_RATE_LIMIT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "native-key", cfg.Builder.APIKey)
	assert.Equal(t, "alias-secret", cfg.Builder.Secret)
	assert.Equal(t, "alias-pass", cfg.Builder.Passphrase)
	assert.True(t, cfg.Builder.Configured())
	assert.Equal(t, "https://clob.alias.example", cfg.Polymarket.ClobHost)
	assert.Equal(t, "https://preview.minidict.app", cfg.App.PublicURL)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TagsTTL.Duration)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, Defaults().Server.RateLimit, cfg.Server.RateLimit)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "trade" }, `unknown mode "trade"`},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }, `unknown log_level "loud"`},
		{"partial builder", func(c *Config) { c.Builder.APIKey = "k" }, "builder: api_key, secret, and passphrase"},
		{"bad clob host", func(c *Config) { c.Polymarket.ClobHost = "clob.polymarket.com" }, "polymarket.clob_host"},
		{"redis cache without redis", func(c *Config) { c.Cache.Backend = "redis" }, "requires redis.enabled"},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "memcached" }, `unknown backend "memcached"`},
		{"postgres port", func(c *Config) { c.Postgres.Enabled = true; c.Postgres.Port = 0 }, "postgres: port"},
		{"archive without postgres", func(c *Config) { c.Mode = "archive" }, "archive: requires postgres.enabled"},
		{"server port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
		{"rate window", func(c *Config) { c.Server.RateWindow.Duration = 0 }, "rate_window"},
		{"trusted proxy", func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/8", "lb.internal"} }, `trusted_proxies entry "lb.internal"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config validation failed")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "nope"
	cfg.Server.Port = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "server: port")
}

func TestValidate_ArchiveMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	cfg.Postgres.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Builder = BuilderConfig{APIKey: "k", Secret: "s", Passphrase: "p"}
	cfg.Postgres.Password = "pw"
	cfg.Server.APIKey = "api"
	cfg.Notify.TelegramToken = "tok"

	out := RedactedConfig(&cfg)

	assert.Equal(t, "***", out.Builder.APIKey)
	assert.Equal(t, "***", out.Builder.Secret)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.Notify.DiscordWebhookURL)
	assert.Equal(t, "k", cfg.Builder.APIKey)

	out.Server.CORSOrigins[0] = "changed"
	assert.Equal(t, "*", cfg.Server.CORSOrigins[0])
}
