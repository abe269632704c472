package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/minidict/minidict/internal/domain"
	"github.com/minidict/minidict/internal/miniapp"
)

// AuditLogger records audit events.
type AuditLogger interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}

// MiniAppHandler serves the Farcaster manifest and webhook.
type MiniAppHandler struct {
	manifest miniapp.Manifest
	audit    AuditLogger
	logger   *slog.Logger
}

// NewMiniAppHandler creates a MiniAppHandler. audit may be nil.
func NewMiniAppHandler(manifest miniapp.Manifest, audit AuditLogger, logger *slog.Logger) *MiniAppHandler {
	return &MiniAppHandler{
		manifest: manifest,
		audit:    audit,
		logger:   logHandler(logger, "miniapp"),
	}
}

// Manifest serves the mini-app manifest.
// GET /.well-known/farcaster.json
func (h *MiniAppHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manifest)
}

// Webhook accepts mini-app lifecycle and notification events.
// POST /api/webhook
func (h *MiniAppHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := miniapp.ParseWebhookEvent(body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: rejected webhook", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	h.logger.InfoContext(r.Context(), "handler: mini-app webhook",
		slog.String("event", event.Event),
		slog.Int64("fid", event.FID),
	)

	if h.audit != nil {
		detail := map[string]any{
			"fid":           event.FID,
			"event":         event.Event,
			"notifications": event.NotificationDetails != nil,
		}
		if err := h.audit.Log(r.Context(), domain.AuditWebhook, detail); err != nil {
			h.logger.WarnContext(r.Context(), "handler: audit webhook failed", slog.String("error", err.Error()))
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
