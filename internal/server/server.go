// Package server assembles the HTTP API: routes, middleware and lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minidict/minidict/internal/domain"
	"github.com/minidict/minidict/internal/server/handler"
	"github.com/minidict/minidict/internal/server/middleware"
	"github.com/minidict/minidict/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // guards /api/sign; empty disables the check

	// RateLimit is the per-client request allowance per RateWindow.
	// Zero disables rate limiting.
	RateLimit  int
	RateWindow time.Duration

	// TrustedProxies lists peers (IPs or CIDRs) whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means headers are ignored.
	TrustedProxies []string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Wallet  *handler.WalletHandler
	Markets *handler.MarketHandler
	Orders  *handler.OrderHandler
	MiniApp *handler.MiniAppHandler
}

// Server is the HTTP + WebSocket API server for the mini app.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. When reg is
// non-nil, HTTP metrics are registered with it and served on /metrics. The
// session bridge is mounted when hub is non-nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, reg *prometheus.Registry, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Wallet endpoints.
	mux.HandleFunc("GET /api/balance", handlers.Wallet.Balance)
	mux.HandleFunc("GET /api/basename", handlers.Wallet.Basename)
	mux.HandleFunc("GET /api/portfolio", handlers.Wallet.Portfolio)
	mux.HandleFunc("GET /api/positions", handlers.Wallet.Positions)
	mux.HandleFunc("GET /api/trades", handlers.Wallet.Trades)

	// Market data.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/events", handlers.Markets.ListEvents)
	mux.HandleFunc("GET /api/tags", handlers.Markets.ListTags)
	mux.HandleFunc("GET /api/book", handlers.Markets.Orderbook)
	mux.HandleFunc("GET /api/price", handlers.Markets.Price)

	// Trading.
	mux.HandleFunc("POST /api/order", handlers.Orders.PlaceOrder)
	mux.Handle("POST /api/sign", middleware.Auth(cfg.APIKey)(http.HandlerFunc(handlers.Orders.Sign)))
	mux.HandleFunc("POST /api/auth/derive-api-key", handlers.Orders.DeriveAPIKey)

	// Mini app.
	mux.HandleFunc("GET /.well-known/farcaster.json", handlers.MiniApp.Manifest)
	mux.HandleFunc("POST /api/webhook", handlers.MiniApp.Webhook)

	if hub != nil {
		mux.HandleFunc("GET /ws/session", hub.HandleSession)
	}
	if reg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		logger.Warn("server: ignoring trusted proxies", slog.String("error", err.Error()))
		trusted = nil
	}

	// Build the middleware chain, innermost first. Metrics reads the mux
	// pattern off the request, so nothing between it and the mux may
	// replace the request.
	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, trusted, logger)(h)
	if reg != nil {
		h = middleware.NewHTTPMetrics(reg).Middleware(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.Recover(logger)(h)
	h = middleware.RequestID(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  orDefault(cfg.ReadTimeout, 15*time.Second),
		WriteTimeout: orDefault(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  orDefault(cfg.IdleTimeout, 60*time.Second),
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
