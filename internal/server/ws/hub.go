// Package ws bridges browser sessions to server-side session managers over
// WebSocket.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/minidict/minidict/internal/session"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 64 * 1024

	// sendBufferSize is the channel buffer for outgoing messages per bridge.
	sendBufferSize = 64

	defaultRPCTimeout = 2 * time.Minute
)

// Config configures the hub.
type Config struct {
	// AllowedOrigins restricts upgrade origins. Empty allows all.
	AllowedOrigins []string
	// RPCTimeout bounds a wallet request relayed to the browser; users may
	// take a while to approve a prompt.
	RPCTimeout time.Duration
}

// Hub tracks live session bridges.
type Hub struct {
	deps       session.Deps
	upgrader   websocket.Upgrader
	rpcTimeout time.Duration

	bridges    map[*bridge]bool
	register   chan *bridge
	unregister chan *bridge
	done       chan struct{}
	mu         sync.RWMutex

	live   prometheus.Gauge
	logger *slog.Logger
}

// NewHub creates a hub whose sessions refresh from deps. The live-bridge
// gauge is registered with reg when reg is non-nil.
func NewHub(deps session.Deps, cfg Config, reg prometheus.Registerer, logger *slog.Logger) *Hub {
	logger = logger.With(slog.String("component", "ws"))
	if deps.Logger == nil {
		deps.Logger = logger
	}
	timeout := cfg.RPCTimeout
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}

	live := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "minidict",
		Subsystem: "ws",
		Name:      "session_bridges",
		Help:      "Live WebSocket session bridges.",
	})
	if reg != nil {
		reg.MustRegister(live)
	}

	origins := cfg.AllowedOrigins
	return &Hub{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(origins, r.Header.Get("Origin"))
			},
		},
		rpcTimeout: timeout,
		bridges:    make(map[*bridge]bool),
		register:   make(chan *bridge),
		unregister: make(chan *bridge),
		done:       make(chan struct{}),
		live:       live,
		logger:     logger,
	}
}

// Run starts the hub's main event loop. It handles bridge registration and
// unregistration, and closes every bridge when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for b := range h.bridges {
				b.close()
				delete(h.bridges, b)
			}
			h.mu.Unlock()
			h.live.Set(0)
			return ctx.Err()

		case b := <-h.register:
			h.mu.Lock()
			h.bridges[b] = true
			h.mu.Unlock()
			h.live.Inc()
			h.logger.Info("ws: session bridge connected", slog.Int("total_bridges", h.Count()))

		case b := <-h.unregister:
			h.mu.Lock()
			_, ok := h.bridges[b]
			delete(h.bridges, b)
			h.mu.Unlock()
			if ok {
				h.live.Dec()
			}
			h.logger.Info("ws: session bridge disconnected", slog.Int("total_bridges", h.Count()))
		}
	}
}

// Count returns the number of live bridges.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bridges)
}

// HandleSession upgrades the request and starts a session bridge.
// GET /ws/session
func (h *Hub) HandleSession(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, `{"error":"shutting down"}`, http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	b := newBridge(h, conn)
	select {
	case h.register <- b:
	case <-h.done:
		conn.Close()
		return
	}

	go b.writePump()
	go b.readPump()
}

func (h *Hub) release(b *bridge) {
	select {
	case h.unregister <- b:
	case <-h.done:
	}
}

func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
