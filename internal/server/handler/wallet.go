package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/minidict/minidict/internal/domain"
)

// BalanceService returns wallet balances.
type BalanceService interface {
	Balances(ctx context.Context, address string) domain.Balances
}

// IdentityService resolves a wallet's display identity.
type IdentityService interface {
	Resolve(ctx context.Context, address string) domain.Identity
}

// PortfolioService returns portfolio summaries and enriched positions.
type PortfolioService interface {
	Portfolio(ctx context.Context, address string) domain.Portfolio
	Positions(ctx context.Context, address string) []domain.EnrichedPosition
}

// TradeService returns wallet trade history.
type TradeService interface {
	Trades(ctx context.Context, address string) []domain.Trade
}

// WalletHandler serves the per-address read endpoints. None of them fail on
// upstream errors; they answer with empty or zero bodies instead.
type WalletHandler struct {
	balances  BalanceService
	identity  IdentityService
	portfolio PortfolioService
	trades    TradeService
	logger    *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(balances BalanceService, identity IdentityService, portfolio PortfolioService, trades TradeService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		balances:  balances,
		identity:  identity,
		portfolio: portfolio,
		trades:    trades,
		logger:    logHandler(logger, "wallet"),
	}
}

// Balance returns the wallet's Base and Polygon balances.
// GET /api/balance?address=0x...
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	address, ok := requireAddress(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.balances.Balances(r.Context(), address))
}

// Basename returns the wallet's display name and avatar.
// GET /api/basename?address=0x...
func (h *WalletHandler) Basename(w http.ResponseWriter, r *http.Request) {
	address, ok := requireAddress(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.identity.Resolve(r.Context(), address))
}

// Portfolio returns the wallet's portfolio summary.
// GET /api/portfolio?address=0x...
func (h *WalletHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	address, ok := requireAddress(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.portfolio.Portfolio(r.Context(), address))
}

type positionsResponse struct {
	Positions []domain.EnrichedPosition `json:"positions"`
}

// Positions returns the wallet's open positions with market metadata.
// GET /api/positions?address=0x...
func (h *WalletHandler) Positions(w http.ResponseWriter, r *http.Request) {
	address, ok := requireAddress(w, r)
	if !ok {
		return
	}
	positions := h.portfolio.Positions(r.Context(), address)
	if positions == nil {
		positions = []domain.EnrichedPosition{}
	}
	writeJSON(w, http.StatusOK, positionsResponse{Positions: positions})
}

type tradesResponse struct {
	Trades []domain.Trade `json:"trades"`
}

// Trades returns the wallet's recent trades.
// GET /api/trades?address=0x...
func (h *WalletHandler) Trades(w http.ResponseWriter, r *http.Request) {
	address, ok := requireAddress(w, r)
	if !ok {
		return
	}
	trades := h.trades.Trades(r.Context(), address)
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, tradesResponse{Trades: trades})
}
