package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// GammaClient is the REST client for the Polymarket Gamma API, which
// provides market discovery, events and tags.
type GammaClient struct {
	restClient
}

// NewGammaClient creates a new Gamma API client. A nil httpClient gets a
// client with a 30s timeout.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, httpClient *http.Client) *GammaClient {
	return &GammaClient{restClient: newRestClient(baseURL, httpClient)}
}

// ListMarkets returns the raw /markets response for the given query.
func (g *GammaClient) ListMarkets(ctx context.Context, query url.Values) (json.RawMessage, error) {
	body, err := g.doGet(ctx, withQuery("/markets", query))
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: list markets: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("polymarket/gamma: list markets: invalid JSON body")
	}
	return body, nil
}

// ListEvents returns the raw /events response for the given query.
func (g *GammaClient) ListEvents(ctx context.Context, query url.Values) (json.RawMessage, error) {
	body, err := g.doGet(ctx, withQuery("/events", query))
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: list events: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("polymarket/gamma: list events: invalid JSON body")
	}
	return body, nil
}

// MarketsByCondition returns the markets matching a condition id. The list
// is usually of length one.
func (g *GammaClient) MarketsByCondition(ctx context.Context, conditionID string) ([]APIMarket, error) {
	params := url.Values{}
	params.Set("condition_id", conditionID)

	body, err := g.doGet(ctx, withQuery("/markets", params))
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: markets for condition %s: %w", conditionID, err)
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	return markets, nil
}

// Tags returns up to limit market tags.
func (g *GammaClient) Tags(ctx context.Context, limit int) ([]APITag, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	body, err := g.doGet(ctx, withQuery("/tags", params))
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: get tags: %w", err)
	}

	var tags []APITag
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode tags: %w", err)
	}
	return tags, nil
}

func withQuery(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}
