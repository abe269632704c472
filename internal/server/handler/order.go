package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/minidict/minidict/internal/domain"
	"github.com/minidict/minidict/internal/platform/polymarket"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	Place(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	Sign(ctx context.Context, req domain.SignRequest) (map[string]string, error)
	DeriveAPIKey(ctx context.Context, auth polymarket.L1Auth) (polymarket.APICredentials, error)
}

// OrderHandler serves the order proxy and builder signing endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logHandler(logger, "order"),
	}
}

// orderErrorResponse is the body of a failed order request.
type orderErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Status int    `json:"status,omitempty"`
}

// PlaceOrder forwards a user-signed order to the CLOB.
// POST /api/order
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.orders.Place(r.Context(), req)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Sign returns builder attribution headers for a client-built request.
// POST /api/sign
func (h *OrderHandler) Sign(w http.ResponseWriter, r *http.Request) {
	var req domain.SignRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	headers, err := h.orders.Sign(r.Context(), req)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, headers)
}

// DeriveAPIKey exchanges wallet L1 auth for the user's CLOB credentials.
// POST /api/auth/derive-api-key
func (h *OrderHandler) DeriveAPIKey(w http.ResponseWriter, r *http.Request) {
	var auth polymarket.L1Auth
	if err := decodeBody(w, r, &auth); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	creds, err := h.orders.DeriveAPIKey(r.Context(), auth)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

func (h *OrderHandler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var oerr *domain.OrderError
	if !errors.As(err, &oerr) {
		h.logger.ErrorContext(r.Context(), "handler: order request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	resp := orderErrorResponse{Error: oerr.Message, Code: oerr.Code}
	if oerr.Code == "" {
		resp.Status = oerr.UpstreamStatus
	}
	status := oerr.Status
	if status < 400 || status > 599 {
		status = http.StatusBadGateway
	}
	if status >= 500 {
		h.logger.ErrorContext(r.Context(), "handler: order request failed",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, resp)
}
