// Package identity is a client for the web3.bio universal profile API.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultBaseURL is the public web3.bio API root.
const DefaultBaseURL = "https://api.web3.bio"

// Platform names returned by web3.bio.
const (
	PlatformBasenames = "basenames"
	PlatformENS       = "ens"
	PlatformFarcaster = "farcaster"
)

// Profile is one linked identity of an address.
type Profile struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	Platform    string `json:"platform"`
	Avatar      string `json:"avatar"`
}

// Client fetches profiles from web3.bio.
type Client struct {
	client *resty.Client
}

// NewClient creates a client with the given per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{client: c}
}

// Profiles returns every profile linked to address, in upstream order.
func (c *Client) Profiles(ctx context.Context, address string) ([]Profile, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get("/profile/" + url.PathEscape(address))
	if err != nil {
		return nil, fmt.Errorf("identity: get profile: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("identity: get profile: HTTP %d", resp.StatusCode())
	}

	var profiles []Profile
	if err := json.Unmarshal(resp.Body(), &profiles); err != nil {
		return nil, fmt.Errorf("identity: decode profiles: %w", err)
	}
	return profiles, nil
}
