package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/minidict/minidict/internal/domain"
	"github.com/minidict/minidict/internal/miniapp"
	"github.com/minidict/minidict/internal/server"
	"github.com/minidict/minidict/internal/server/handler"
	"github.com/minidict/minidict/internal/server/ws"
	"github.com/minidict/minidict/internal/service"
	"github.com/minidict/minidict/internal/session"
)

const (
	archiveLockKey = "lock:archive"
	archiveLockTTL = 10 * time.Minute
)

// ServeMode runs the HTTP API, the session bridge hub and, when enabled, the
// periodic audit archiver. It returns when ctx is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	cfg := a.cfg

	// Services.
	balances := service.NewBalanceService(deps.Base, deps.Polygon, deps.Cache, cfg.Cache.BalancesTTL.Duration, a.logger)
	portfolio := service.NewPortfolioService(deps.Data, deps.Gamma, deps.Cache, cfg.Cache.MarketTTL.Duration, a.logger)
	identities := service.NewIdentityService(deps.Profiles, deps.Base, deps.Cache,
		cfg.Cache.IdentityTTL.Duration, cfg.Identity.Timeout.Duration, a.logger)
	markets := service.NewMarketService(deps.Gamma, deps.Clob, deps.Cache, service.MarketTTLs{
		Markets: cfg.Cache.MarketsTTL.Duration,
		Events:  cfg.Cache.EventsTTL.Duration,
		Tags:    cfg.Cache.TagsTTL.Duration,
	}, a.logger)
	trades := service.NewTradeService(deps.Data, a.logger)

	orders := service.NewOrderService(deps.Signer, deps.Clob, deps.AuditStore, deps.Notifier, a.logger)

	manifest := miniapp.BuildManifest(cfg.App.PublicURL, miniapp.AccountAssociation{
		Header:    cfg.App.AssociationHeader,
		Payload:   cfg.App.AssociationPayload,
		Signature: cfg.App.AssociationSignature,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := ws.NewHub(session.Deps{
		Balances:  balances,
		Portfolio: portfolio,
		Identity:  identities,
		Logger:    a.logger,
	}, ws.Config{
		AllowedOrigins: cfg.Server.WSOrigins,
		RPCTimeout:     cfg.Server.WSRPCTimeout.Duration,
	}, reg, a.logger)
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	srv := server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
		RateLimit:   cfg.Server.RateLimit,
		RateWindow:  cfg.Server.RateWindow.Duration,

		TrustedProxies: cfg.Server.TrustedProxies,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(),
		Wallet:  handler.NewWalletHandler(balances, identities, portfolio, trades, a.logger),
		Markets: handler.NewMarketHandler(markets, a.logger),
		Orders:  handler.NewOrderHandler(orders, a.logger),
		MiniApp: handler.NewMiniAppHandler(manifest, deps.AuditStore, a.logger),
	}, hub, deps.RateLimiter, reg, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if cfg.Archive.Enabled {
		if deps.Archiver == nil {
			a.logger.WarnContext(ctx, "archive: enabled but archiver unavailable (postgres or s3 not configured)")
		} else {
			g.Go(func() error {
				a.archiveLoop(ctx, deps, cfg.Archive.Interval.Duration)
				return nil
			})
		}
	}

	return g.Wait()
}

// ArchiveMode runs one archive pass and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archiver unavailable (postgres and s3 are required)")
	}
	if _, err := a.archiveOnce(ctx, deps); err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	return nil
}

func (a *App) archiveLoop(ctx context.Context, deps *Dependencies, interval time.Duration) {
	run := func() {
		if _, err := a.archiveOnce(ctx, deps); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "archive: pass failed", slog.String("error", err.Error()))
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// archiveOnce archives audit rows older than the retention window. Replicas
// coordinate through the lock manager; a held lock skips the pass.
func (a *App) archiveOnce(ctx context.Context, deps *Dependencies) (int64, error) {
	release, err := deps.LockManager.Acquire(ctx, archiveLockKey, archiveLockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		a.logger.InfoContext(ctx, "archive: another instance holds the lock, skipping")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("acquire lock: %w", err)
	}
	defer release()

	before := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	n, err := deps.Archiver.ArchiveAudit(ctx, before)
	if err != nil {
		deps.Notifier.Go(domain.AuditArchiveAudit, "Audit archive failed", err.Error())
		return 0, err
	}

	a.logger.InfoContext(ctx, "archive: pass complete",
		slog.Int64("rows", n),
		slog.Time("before", before),
	)
	return n, nil
}
