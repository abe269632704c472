package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// Audit event names.
const (
	AuditOrderPlaced  = "order.placed"
	AuditOrderFailed  = "order.failed"
	AuditWebhook      = "miniapp.webhook"
	AuditArchiveAudit = "archive.audit"
)

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists the audit log. Rows are only removed once archived.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
	DeleteUpTo(ctx context.Context, before time.Time, maxID int64) (int64, error)
}
