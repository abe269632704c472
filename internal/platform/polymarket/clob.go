package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// UserAgent identifies forwarded requests to the CLOB.
const UserAgent = "Minidict/1.0"

// L1 auth header names.
const (
	HeaderAddress   = "POLY_ADDRESS"
	HeaderSignature = "POLY_SIGNATURE"
	HeaderTimestamp = "POLY_TIMESTAMP"
	HeaderNonce     = "POLY_NONCE"
)

// ClobClient talks to the Polymarket CLOB. It never signs anything itself:
// orders arrive signed by the user and builder headers are supplied by the
// caller.
type ClobClient struct {
	restClient
}

// NewClobClient creates a new CLOB API client.
func NewClobClient(baseURL string, httpClient *http.Client) *ClobClient {
	return &ClobClient{restClient: newRestClient(baseURL, httpClient)}
}

// L1Auth is the wallet-signed header set for credential derivation.
type L1Auth struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Timestamp string `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

// PostOrder POSTs body to /order with the given headers and returns the
// response without interpreting it. Only transport failures are errors.
func (c *ClobClient) PostOrder(ctx context.Context, body []byte, headers map[string]string) (*RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/order", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: create order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range headers {
		// Header names are upstream-defined with underscores; bypass
		// canonicalisation so they go out as given.
		req.Header[k] = []string{v}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: post order: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: read order response: %w", err)
	}

	return &RawResponse{
		StatusCode:  resp.StatusCode,
		Status:      resp.Status,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}

// Orderbook returns the order book of a token.
func (c *ClobClient) Orderbook(ctx context.Context, tokenID string) (APIOrderbook, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.doGet(ctx, "/book?"+params.Encode())
	if err != nil {
		return APIOrderbook{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var book APIOrderbook
	if err := json.Unmarshal(body, &book); err != nil {
		return APIOrderbook{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	return book, nil
}

// Price returns the best bid, ask and midpoint of a token.
func (c *ClobClient) Price(ctx context.Context, tokenID string) (APIPrice, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.doGet(ctx, "/price?"+params.Encode())
	if err != nil {
		return APIPrice{}, fmt.Errorf("polymarket/clob: get price %s: %w", tokenID, err)
	}

	var price APIPrice
	if err := json.Unmarshal(body, &price); err != nil {
		return APIPrice{}, fmt.Errorf("polymarket/clob: decode price: %w", err)
	}
	return price, nil
}

// DeriveAPIKey forwards a user's L1 auth headers to /auth/derive-api-key and
// returns the derived L2 credentials.
func (c *ClobClient) DeriveAPIKey(ctx context.Context, auth L1Auth) (APICredentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return APICredentials{}, fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	nonce := auth.Nonce
	if nonce == "" {
		nonce = "0"
	}
	req.Header[HeaderAddress] = []string{auth.Address}
	req.Header[HeaderSignature] = []string{auth.Signature}
	req.Header[HeaderTimestamp] = []string{auth.Timestamp}
	req.Header[HeaderNonce] = []string{nonce}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return APICredentials{}, fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return APICredentials{}, fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if err := checkHTTPStatus(resp, respBody); err != nil {
		return APICredentials{}, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}

	var creds APICredentials
	if err := json.Unmarshal(respBody, &creds); err != nil {
		return APICredentials{}, fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}
	return creds, nil
}
