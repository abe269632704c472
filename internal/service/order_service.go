package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/minidict/minidict/internal/domain"
	"github.com/minidict/minidict/internal/platform/polymarket"
)

// Client-facing order error messages.
const (
	msgMissingFields      = "Missing required fields"
	msgMissingMethodPath  = "Missing method or path"
	msgMissingL1Auth      = "Missing address or signature"
	msgMissingCredentials = "Builder credentials not configured. Add POLY_BUILDER_API_KEY, POLY_BUILDER_SECRET, and POLY_BUILDER_PASSPHRASE to environment variables."
	msgAccessBlocked      = "API access blocked. This usually means the server IP is not whitelisted by Polymarket. Deploy to a whitelisted server or contact Polymarket for builder access."
	msgOrderFailed        = "Order placement failed"
	msgDeriveFailed       = "Failed to derive API credentials"
)

// HeaderSigner produces builder attribution headers for a request.
type HeaderSigner interface {
	Headers(method, path, body string) (map[string]string, error)
}

// ClobGateway forwards user-authorised requests to the CLOB.
type ClobGateway interface {
	PostOrder(ctx context.Context, body []byte, headers map[string]string) (*polymarket.RawResponse, error)
	DeriveAPIKey(ctx context.Context, auth polymarket.L1Auth) (polymarket.APICredentials, error)
}

// AuditLogger records audit events.
type AuditLogger interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// Alerter delivers operator notifications in the background.
type Alerter interface {
	Go(event, title, message string)
}

// OrderService proxies user-signed orders to the CLOB with builder
// attribution.
type OrderService struct {
	signer HeaderSigner
	clob   ClobGateway
	audit  AuditLogger
	alerts Alerter
	nowFn  func() time.Time
	logger *slog.Logger
}

// NewOrderService creates an OrderService. audit and alerts may be nil.
func NewOrderService(signer HeaderSigner, clob ClobGateway, audit AuditLogger, alerts Alerter, logger *slog.Logger) *OrderService {
	return &OrderService{
		signer: signer,
		clob:   clob,
		audit:  audit,
		alerts: alerts,
		nowFn:  time.Now,
		logger: logger.With(slog.String("component", "order_service")),
	}
}

// Place forwards req.Order to the CLOB. Every failure is a *domain.OrderError
// carrying the status to answer with.
func (s *OrderService) Place(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if !req.HasOrder() || req.UserAddress == "" {
		return domain.OrderResult{}, &domain.OrderError{Status: http.StatusBadRequest, Message: msgMissingFields}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, req.Order); err != nil {
		return domain.OrderResult{}, &domain.OrderError{Status: http.StatusBadRequest, Message: msgMissingFields, Err: err}
	}
	body := compact.Bytes()

	builder, err := s.signer.Headers(http.MethodPost, "/order", string(body))
	if err != nil {
		s.logger.ErrorContext(ctx, "order_service: builder credentials unavailable", slog.String("error", err.Error()))
		oerr := &domain.OrderError{
			Status:  http.StatusInternalServerError,
			Code:    domain.CodeMissingCredentials,
			Message: msgMissingCredentials,
			Err:     err,
		}
		s.record(ctx, req.UserAddress, "", oerr)
		return domain.OrderResult{}, oerr
	}

	headers := s.userHeaders(req)
	for k, v := range builder {
		headers[k] = v
	}

	s.logger.InfoContext(ctx, "order_service: forwarding order",
		slog.String("user", req.UserAddress),
		slog.Bool("builder_auth", len(builder) > 0),
	)

	resp, err := s.clob.PostOrder(ctx, body, headers)
	if err != nil {
		oerr := &domain.OrderError{Status: http.StatusInternalServerError, Message: err.Error(), Err: err}
		s.record(ctx, req.UserAddress, "", oerr)
		return domain.OrderResult{}, oerr
	}

	result, oerr := interpretOrderResponse(resp)
	if oerr != nil {
		s.logger.WarnContext(ctx, "order_service: order rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", truncate(string(resp.Body), 500)),
		)
		s.record(ctx, req.UserAddress, "", oerr)
		return domain.OrderResult{}, oerr
	}

	s.logger.InfoContext(ctx, "order_service: order placed",
		slog.String("user", req.UserAddress),
		slog.String("order_id", result.OrderID),
	)
	s.record(ctx, req.UserAddress, result.OrderID, nil)
	return result, nil
}

func (s *OrderService) userHeaders(req domain.OrderRequest) map[string]string {
	ts := string(req.UserTimestamp)
	if ts == "" {
		ts = strconv.FormatInt(s.nowFn().UnixMilli(), 10)
	}
	nonce := string(req.UserNonce)
	if nonce == "" {
		nonce = "0"
	}
	return map[string]string{
		polymarket.HeaderAddress:   req.UserAddress,
		polymarket.HeaderSignature: req.UserSignature,
		polymarket.HeaderTimestamp: ts,
		polymarket.HeaderNonce:     nonce,
	}
}

// interpretOrderResponse maps a raw CLOB reply to a result or an order error.
func interpretOrderResponse(resp *polymarket.RawResponse) (domain.OrderResult, *domain.OrderError) {
	if !resp.IsJSON() {
		if resp.StatusCode == http.StatusForbidden {
			return domain.OrderResult{}, &domain.OrderError{
				Status:         http.StatusForbidden,
				Code:           domain.CodeAccessBlocked,
				Message:        msgAccessBlocked,
				UpstreamStatus: resp.StatusCode,
			}
		}
		return domain.OrderResult{}, &domain.OrderError{
			Status:         resp.StatusCode,
			Message:        fmt.Sprintf("CLOB API error (%d). Please try again.", resp.StatusCode),
			UpstreamStatus: resp.StatusCode,
		}
	}

	var data map[string]any
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return domain.OrderResult{}, &domain.OrderError{
			Status:  http.StatusInternalServerError,
			Message: err.Error(),
			Err:     fmt.Errorf("order_service: decode clob response: %w", err),
		}
	}

	if !resp.OK() {
		msg := firstString(data, "message", "error")
		if msg == "" {
			msg = msgOrderFailed
		}
		return domain.OrderResult{}, &domain.OrderError{Status: resp.StatusCode, Message: msg}
	}

	return domain.OrderResult{OrderID: firstString(data, "orderID", "id"), Upstream: data}, nil
}

// Sign returns builder headers for an arbitrary request.
func (s *OrderService) Sign(ctx context.Context, req domain.SignRequest) (map[string]string, error) {
	if req.Method == "" || req.Path == "" {
		return nil, &domain.OrderError{Status: http.StatusBadRequest, Message: msgMissingMethodPath}
	}
	headers, err := s.signer.Headers(req.Method, req.Path, req.Body)
	if err != nil {
		s.logger.ErrorContext(ctx, "order_service: signing failed", slog.String("error", err.Error()))
		return nil, &domain.OrderError{Status: http.StatusInternalServerError, Message: err.Error(), Err: err}
	}
	return headers, nil
}

// DeriveAPIKey forwards wallet L1 auth to the CLOB and returns the user's
// L2 credentials.
func (s *OrderService) DeriveAPIKey(ctx context.Context, auth polymarket.L1Auth) (polymarket.APICredentials, error) {
	if auth.Address == "" || auth.Signature == "" {
		return polymarket.APICredentials{}, &domain.OrderError{Status: http.StatusBadRequest, Message: msgMissingL1Auth}
	}
	if auth.Timestamp == "" {
		auth.Timestamp = strconv.FormatInt(s.nowFn().Unix(), 10)
	}

	creds, err := s.clob.DeriveAPIKey(ctx, auth)
	if err != nil {
		s.logger.WarnContext(ctx, "order_service: derive api key failed",
			slog.String("address", auth.Address),
			slog.String("error", err.Error()),
		)
		oerr := &domain.OrderError{Status: http.StatusBadGateway, Message: msgDeriveFailed, Err: err}
		var httpErr *polymarket.HTTPError
		if errors.As(err, &httpErr) {
			oerr.UpstreamStatus = httpErr.StatusCode
		}
		return polymarket.APICredentials{}, oerr
	}
	return creds, nil
}

// record writes the order outcome to the audit log and notifies operators.
// Audit failures are logged only.
func (s *OrderService) record(ctx context.Context, address, orderID string, oerr *domain.OrderError) {
	event := domain.AuditOrderPlaced
	detail := map[string]any{"address": address}
	if oerr != nil {
		event = domain.AuditOrderFailed
		detail["status"] = oerr.Status
		detail["error"] = oerr.Message
		if oerr.Code != "" {
			detail["code"] = oerr.Code
		}
	} else if orderID != "" {
		detail["order_id"] = orderID
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, event, detail); err != nil {
			s.logger.WarnContext(ctx, "order_service: audit log failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.alerts != nil {
		if oerr != nil {
			s.alerts.Go(event, "Order failed", fmt.Sprintf("%s: %s (%d)", address, oerr.Message, oerr.Status))
		} else {
			s.alerts.Go(event, "Order placed", fmt.Sprintf("%s placed order %s", address, orderID))
		}
	}
}

// firstString returns the first non-empty value among keys, stringified.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case nil:
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			if v {
				return "true"
			}
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
