package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DataClient is the REST client for the Polymarket Data API, which serves
// per-wallet positions, portfolio value and trade history.
type DataClient struct {
	restClient
}

// NewDataClient creates a new Data API client.
func NewDataClient(baseURL string, httpClient *http.Client) *DataClient {
	return &DataClient{restClient: newRestClient(baseURL, httpClient)}
}

// Positions returns every position of user. The address is lowercased.
func (d *DataClient) Positions(ctx context.Context, user string) ([]APIPosition, error) {
	body, err := d.doGet(ctx, "/positions?"+userQuery(user).Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get positions: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode positions: %w", err)
	}

	positions := make([]APIPosition, 0, len(raw))
	for _, r := range raw {
		var p APIPosition
		if err := json.Unmarshal(r, &p); err != nil {
			return nil, fmt.Errorf("polymarket/data: decode position: %w", err)
		}
		p.Raw = r
		positions = append(positions, p)
	}
	return positions, nil
}

// Value returns the /value rows for user.
func (d *DataClient) Value(ctx context.Context, user string) ([]APIValue, error) {
	body, err := d.doGet(ctx, "/value?"+userQuery(user).Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get value: %w", err)
	}

	var values []APIValue
	if err := json.Unmarshal(body, &values); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode value: %w", err)
	}
	return values, nil
}

// Trades returns up to limit recent trades of user.
func (d *DataClient) Trades(ctx context.Context, user string, limit int) ([]APITrade, error) {
	params := userQuery(user)
	params.Set("limit", strconv.Itoa(limit))

	body, err := d.doGet(ctx, "/trades?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get trades: %w", err)
	}

	// Numbers stay json.Number so ids and timestamps round-trip unchanged.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var trades []APITrade
	if err := dec.Decode(&trades); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode trades: %w", err)
	}
	return trades, nil
}

func userQuery(user string) url.Values {
	params := url.Values{}
	params.Set("user", strings.ToLower(user))
	return params
}
