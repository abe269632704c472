package polymarket

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Default upstream hosts.
const (
	DefaultGammaURL = "https://gamma-api.polymarket.com"
	DefaultDataURL  = "https://data-api.polymarket.com"
	DefaultClobURL  = "https://clob.polymarket.com"
)

const defaultTimeout = 30 * time.Second

// restClient holds what the Gamma, Data and CLOB clients share: a base URL
// and an HTTP client with a bounded timeout.
type restClient struct {
	baseURL    string
	httpClient *http.Client
}

func newRestClient(baseURL string, httpClient *http.Client) restClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return restClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// doGet sends an unauthenticated GET request and returns the body of a 2xx
// response. Other statuses yield an *HTTPError.
func (c restClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp, body); err != nil {
		return nil, err
	}

	return body, nil
}
