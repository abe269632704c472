package miniapp

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/minidict/minidict/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildManifest_Defaults(t *testing.T) {
	m := BuildManifest("", AccountAssociation{})

	data, err := json.Marshal(m)
	require.NoError(t, err)

	const want = `{
		"accountAssociation": {
			"header": "eyJmaWQiOjEwNDExMzIsInR5cGUiOiJjdXN0b2R5Iiwia2V5IjoiMHg5ODQyN2Q1M0MwYjA2MDk1OGQ0MWRhYTI1ZTI0MTcyOGE4ZTMwOWFkIn0",
			"payload": "eyJkb21haW4iOiJtaW5pZGljdC5hcHAifQ",
			"signature": "Nvy2a6cY8VHVXQu2OEMnRm6WhSimOKO36+VysaEbQxZmlYV2BztYNQPM3ZrpBzNO8RuoKUbnhn6a9yZRFzQ/cBw="
		},
		"miniapp": {
			"version": "1",
			"name": "Minidict",
			"homeUrl": "https://minidict.app",
			"iconUrl": "https://minidict.app/images/minidict-logo.png",
			"splashImageUrl": "https://minidict.app/images/minidict-logo.png",
			"splashBackgroundColor": "#0a0a14",
			"webhookUrl": "https://minidict.app/api/webhook",
			"subtitle": "Trade prediction markets",
			"description": "Trade prediction markets on Polymarket with real-time data. Built for Base and Farcaster.",
			"screenshotUrls": [],
			"primaryCategory": "finance",
			"tags": ["polymarket", "prediction-markets", "trading", "defi", "base"],
			"heroImageUrl": "https://minidict.app/images/minidict-logo.png",
			"tagline": "Trade markets on Base",
			"ogTitle": "Minidict - Polymarket on Base",
			"ogDescription": "Trade prediction markets with real-time data from Polymarket",
			"ogImageUrl": "https://minidict.app/images/minidict-logo.png",
			"noindex": false
		}
	}`
	assert.JSONEq(t, want, string(data))
}

func TestBuildManifest_CustomURL(t *testing.T) {
	m := BuildManifest("https://staging.minidict.app/", AccountAssociation{Header: "h", Payload: "p", Signature: "s"})
	assert.Equal(t, "https://staging.minidict.app", m.MiniApp.HomeURL)
	assert.Equal(t, "https://staging.minidict.app/api/webhook", m.MiniApp.WebhookURL)
	assert.Equal(t, AccountAssociation{Header: "h", Payload: "p", Signature: "s"}, m.AccountAssociation)
}

func segment(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(b)
}

func TestParseWebhookEvent(t *testing.T) {
	body, err := json.Marshal(map[string]string{
		"header":    segment(t, map[string]any{"fid": 1041132, "type": "app_key", "key": "0xkey"}),
		"payload":   segment(t, map[string]any{"event": EventNotificationsEnabled, "notificationDetails": map[string]string{"url": "https://api.client/notify", "token": "tok"}}),
		"signature": "c2ln",
	})
	require.NoError(t, err)

	ev, err := ParseWebhookEvent(body)
	require.NoError(t, err)
	assert.Equal(t, int64(1041132), ev.FID)
	assert.Equal(t, EventNotificationsEnabled, ev.Event)
	require.NotNil(t, ev.NotificationDetails)
	assert.Equal(t, "tok", ev.NotificationDetails.Token)
}

func TestParseWebhookEvent_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"not json", `nope`},
		{"missing signature", `{"header":"e30","payload":"e30"}`},
		{"bad base64", `{"header":"!!","payload":"e30","signature":"x"}`},
		{"no event", `{"header":"e30","payload":"e30","signature":"x"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseWebhookEvent([]byte(tc.body))
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}
