package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	s3blob "github.com/minidict/minidict/internal/blob/s3"
	"github.com/minidict/minidict/internal/cache/memory"
	"github.com/minidict/minidict/internal/cache/redis"
	"github.com/minidict/minidict/internal/config"
	"github.com/minidict/minidict/internal/crypto"
	"github.com/minidict/minidict/internal/domain"
	"github.com/minidict/minidict/internal/notify"
	"github.com/minidict/minidict/internal/platform/evm"
	"github.com/minidict/minidict/internal/platform/identity"
	"github.com/minidict/minidict/internal/platform/polymarket"
	"github.com/minidict/minidict/internal/store/postgres"
)

// Dependencies bundles every client, cache and store the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Upstreams
	Gamma    *polymarket.GammaClient
	Data     *polymarket.DataClient
	Clob     *polymarket.ClobClient
	Base     *evm.Client
	Polygon  *evm.Client
	Profiles *identity.Client
	Signer   *crypto.BuilderSigner

	// Caches
	Cache       domain.Cache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Persistence; nil unless postgres (and s3) are enabled.
	AuditStore domain.AuditStore
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
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
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}
	archiving := cfg.Archive.Enabled || strings.EqualFold(cfg.Mode, "archive")

	// --- Upstream clients ---
	httpClient := &http.Client{Timeout: cfg.Polymarket.HTTPTimeout.Duration}
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost, httpClient)
	deps.Data = polymarket.NewDataClient(cfg.Polymarket.DataHost, httpClient)
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, httpClient)
	deps.Profiles = identity.NewClient(cfg.Identity.Web3BioURL, cfg.Identity.Timeout.Duration)
	deps.Signer = crypto.NewBuilderSigner(cfg.Builder.APIKey, cfg.Builder.Secret, cfg.Builder.Passphrase)
	if !cfg.Builder.Configured() {
		logger.WarnContext(ctx, "wire: builder credentials not configured; order placement will fail")
	}

	base, err := evm.NewClient("base", cfg.Chains.BaseRPC, httpClient)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	closers = append(closers, base.Close)
	deps.Base = base

	polygon, err := evm.NewClient("polygon", cfg.Chains.PolygonRPC, httpClient)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	closers = append(closers, polygon.Close)
	deps.Polygon = polygon

	// --- Redis (shared cache, rate limiting and locks across replicas) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		if strings.EqualFold(cfg.Cache.Backend, "redis") {
			deps.Cache = redis.NewKVCache(redisClient)
		}
	} else {
		deps.RateLimiter = memory.NewRateLimiter(0)
		deps.LockManager = memory.NewLockManager()
	}
	if deps.Cache == nil {
		deps.Cache = memory.NewCache(cfg.Cache.CleanupEvery.Duration)
	}

	// --- PostgreSQL audit log ---
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
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
	}

	// --- S3 archive (only when audit rows are being archived) ---
	if archiving && deps.AuditStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.WarnContext(ctx, "wire: archive bucket not reachable", slog.String("error", err.Error()))
		}
		deps.Archiver = s3blob.NewAuditArchiver(s3Client, deps.AuditStore, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPI,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	closers = append(closers, deps.Notifier.Wait)

	return deps, cleanup, nil
}
