package miniapp

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/minidict/minidict/internal/domain"
)

// Webhook event names sent by Farcaster clients.
const (
	EventMiniAppAdded          = "miniapp_added"
	EventMiniAppRemoved        = "miniapp_removed"
	EventNotificationsEnabled  = "notifications_enabled"
	EventNotificationsDisabled = "notifications_disabled"
)

// NotificationDetails is the push endpoint a client registers for a user.
type NotificationDetails struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// WebhookEvent is a decoded webhook delivery.
type WebhookEvent struct {
	FID                 int64                `json:"fid"`
	KeyType             string               `json:"type"`
	Key                 string               `json:"key"`
	Event               string               `json:"event"`
	NotificationDetails *NotificationDetails `json:"notificationDetails,omitempty"`
}

// signedMessage is the JSON Farcaster Signature envelope: three base64url
// segments.
type signedMessage struct {
	Header    string `json:"header"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// ParseWebhookEvent decodes a webhook body. It checks the envelope shape and
// decodes header and payload; it does not verify the app-key signature
// against the Farcaster key registry.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var msg signedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return WebhookEvent{}, fmt.Errorf("miniapp: %w: decode envelope: %v", domain.ErrInvalidInput, err)
	}
	if msg.Header == "" || msg.Payload == "" || msg.Signature == "" {
		return WebhookEvent{}, fmt.Errorf("miniapp: %w: header, payload and signature are required", domain.ErrInvalidInput)
	}

	var header struct {
		FID  int64  `json:"fid"`
		Type string `json:"type"`
		Key  string `json:"key"`
	}
	if err := decodeSegment(msg.Header, &header); err != nil {
		return WebhookEvent{}, fmt.Errorf("miniapp: %w: header: %v", domain.ErrInvalidInput, err)
	}

	var payload struct {
		Event               string               `json:"event"`
		NotificationDetails *NotificationDetails `json:"notificationDetails"`
	}
	if err := decodeSegment(msg.Payload, &payload); err != nil {
		return WebhookEvent{}, fmt.Errorf("miniapp: %w: payload: %v", domain.ErrInvalidInput, err)
	}
	if payload.Event == "" {
		return WebhookEvent{}, fmt.Errorf("miniapp: %w: payload has no event", domain.ErrInvalidInput)
	}

	return WebhookEvent{
		FID:                 header.FID,
		KeyType:             header.Type,
		Key:                 header.Key,
		Event:               payload.Event,
		NotificationDetails: payload.NotificationDetails,
	}, nil
}

// decodeSegment base64url-decodes s (padding optional) into v.
func decodeSegment(s string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
