package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/minidict/minidict/internal/domain"
	"github.com/minidict/minidict/internal/platform/polymarket"
)

type stubOrders struct {
	placeErr error
	gotOrder domain.OrderRequest
	gotAuth  polymarket.L1Auth
}

func (s *stubOrders) Place(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	s.gotOrder = req
	if s.placeErr != nil {
		return domain.OrderResult{}, s.placeErr
	}
	return domain.OrderResult{OrderID: "0xorder", Upstream: map[string]any{"status": "live"}}, nil
}

func (s *stubOrders) Sign(_ context.Context, req domain.SignRequest) (map[string]string, error) {
	return map[string]string{"POLY_BUILDER_API_KEY": "key", "POLY_BUILDER_SIGNATURE": req.Method + req.Path}, nil
}

func (s *stubOrders) DeriveAPIKey(_ context.Context, auth polymarket.L1Auth) (polymarket.APICredentials, error) {
	s.gotAuth = auth
	return polymarket.APICredentials{APIKey: "k", Secret: "s", Passphrase: "p"}, nil
}

func TestOrderHandler_PlaceOrder(t *testing.T) {
	s := &stubOrders{}
	h := NewOrderHandler(s, discardLogger())

	rec := do(t, h.PlaceOrder, http.MethodPost, "/api/order",
		`{"order":{"salt":1},"userAddress":"0xabc","userTimestamp":1700000000000,"userNonce":"3"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"orderId":"0xorder","status":"live"}`, rec.Body.String())
	assert.Equal(t, "0xabc", s.gotOrder.UserAddress)
	assert.Equal(t, domain.FlexString("1700000000000"), s.gotOrder.UserTimestamp)
	assert.Equal(t, domain.FlexString("3"), s.gotOrder.UserNonce)
}

func TestOrderHandler_BadBody(t *testing.T) {
	h := NewOrderHandler(&stubOrders{}, discardLogger())

	rec := do(t, h.PlaceOrder, http.MethodPost, "/api/order", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty request body", decode(t, rec)["error"])

	rec = do(t, h.PlaceOrder, http.MethodPost, "/api/order", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "invalid request body")
}

func TestOrderHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "coded error omits status",
			err:        &domain.OrderError{Status: http.StatusForbidden, Code: domain.CodeAccessBlocked, Message: "blocked", UpstreamStatus: 403},
			wantStatus: http.StatusForbidden,
			wantBody:   `{"error":"blocked","code":"ACCESS_BLOCKED"}`,
		},
		{
			name:       "upstream status is echoed",
			err:        &domain.OrderError{Status: http.StatusBadRequest, Message: "invalid order", UpstreamStatus: 400},
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"invalid order","status":400}`,
		},
		{
			name:       "out of range status maps to bad gateway",
			err:        &domain.OrderError{Status: 0, Message: "weird"},
			wantStatus: http.StatusBadGateway,
			wantBody:   `{"error":"weird"}`,
		},
		{
			name:       "unexpected error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Internal server error"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOrderHandler(&stubOrders{placeErr: tt.err}, discardLogger())
			rec := do(t, h.PlaceOrder, http.MethodPost, "/api/order", `{"order":{}}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestOrderHandler_SignAndDerive(t *testing.T) {
	s := &stubOrders{}
	h := NewOrderHandler(s, discardLogger())

	rec := do(t, h.Sign, http.MethodPost, "/api/sign", `{"method":"POST","path":"/order","body":"{}"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"POLY_BUILDER_API_KEY":"key","POLY_BUILDER_SIGNATURE":"POST/order"}`, rec.Body.String())

	rec = do(t, h.DeriveAPIKey, http.MethodPost, "/api/auth/derive-api-key", `{"address":"0xabc","signature":"0xsig","nonce":"0"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"apiKey":"k","secret":"s","passphrase":"p"}`, rec.Body.String())
	assert.Equal(t, "0xsig", s.gotAuth.Signature)
}
