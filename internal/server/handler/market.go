package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/minidict/minidict/internal/domain"
	"github.com/minidict/minidict/internal/platform/polymarket"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	Markets(ctx context.Context, query url.Values) (json.RawMessage, error)
	Events(ctx context.Context, query url.Values) (json.RawMessage, error)
	Tags(ctx context.Context) []domain.Tag
	Orderbook(ctx context.Context, tokenID string) domain.Orderbook
	Price(ctx context.Context, tokenID string) domain.PriceQuote
}

// MarketHandler serves market discovery and CLOB read endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logHandler(logger, "market"),
	}
}

// ListMarkets proxies Gamma's market listing.
// GET /api/markets?limit=&offset=&tag=&closed=&order=&ascending=&active=
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	body, err := h.markets.Markets(r.Context(), r.URL.Query())
	if err != nil {
		h.writeGammaError(w, r, err, "Failed to fetch markets")
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

// ListEvents proxies Gamma's event listing.
// GET /api/events?limit=&offset=&tag_id=&closed=&order=&ascending=
func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	body, err := h.markets.Events(r.Context(), r.URL.Query())
	if err != nil {
		h.writeGammaError(w, r, err, "Failed to fetch events")
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

// ListTags returns market categories, or an empty list.
// GET /api/tags
func (h *MarketHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags := h.markets.Tags(r.Context())
	if tags == nil {
		tags = []domain.Tag{}
	}
	writeJSON(w, http.StatusOK, tags)
}

// Orderbook returns the CLOB book of a token.
// GET /api/book?token_id=...
func (h *MarketHandler) Orderbook(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := requireTokenID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.markets.Orderbook(r.Context(), tokenID))
}

// Price returns the CLOB bid, ask and mid of a token.
// GET /api/price?token_id=...
func (h *MarketHandler) Price(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := requireTokenID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.markets.Price(r.Context(), tokenID))
}

// writeGammaError passes upstream status failures through and maps
// everything else to a 500 with fallback.
func (h *MarketHandler) writeGammaError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var httpErr *polymarket.HTTPError
	if errors.As(err, &httpErr) {
		writeError(w, httpErr.StatusCode, "Gamma API error: "+httpErr.StatusText())
		return
	}
	h.logger.ErrorContext(r.Context(), "handler: gamma request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, fallback)
}

func requireTokenID(w http.ResponseWriter, r *http.Request) (string, bool) {
	tokenID := strings.TrimSpace(r.URL.Query().Get("token_id"))
	if tokenID == "" {
		writeError(w, http.StatusBadRequest, "token_id required")
		return "", false
	}
	return tokenID, true
}
