package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/minidict/minidict/internal/domain"
)

// AuditArchiver implements domain.Archiver. It serialises audit rows older
// than a cutoff to JSONL, uploads them, and only then deletes the rows from
// Postgres.
type AuditArchiver struct {
	store  domain.ArchiveStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAuditArchiver creates a new AuditArchiver.
func NewAuditArchiver(store domain.ArchiveStore, audit domain.AuditStore, logger *slog.Logger) *AuditArchiver {
	return &AuditArchiver{
		store:  store,
		audit:  audit,
		logger: logger.With(slog.String("component", "audit_archiver")),
	}
}

// ArchiveAudit moves every audit row created before the cutoff to
// archive/audit/YYYY-MM/<first>-<last>.jsonl and returns the number of rows
// archived. An object that already exists at the target path (left by an
// interrupted run) is not uploaded again.
func (a *AuditArchiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	firstID, lastID := entries[0].ID, entries[0].ID
	for _, e := range entries {
		firstID = min(firstID, e.ID)
		lastID = max(lastID, e.ID)
	}
	path := archivePath("audit", before, firstID, lastID)

	done, err := a.store.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit: %w", err)
	}
	if done {
		a.logger.InfoContext(ctx, "archive object already present, skipping upload", slog.String("path", path))
	} else {
		buf, err := marshalJSONL(entries)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
		}
		if err := a.store.Upload(ctx, path, buf, "application/x-ndjson"); err != nil {
			return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
		}
	}

	deleted, err := a.audit.DeleteUpTo(ctx, before, lastID)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit prune: %w", err)
	}

	count := int64(len(entries))
	if err := a.audit.Log(ctx, domain.AuditArchiveAudit, map[string]any{
		"path":    path,
		"count":   count,
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log: %w", err)
	}

	a.logger.InfoContext(ctx, "audit rows archived",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Int64("deleted", deleted),
	)
	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff.
//
//	archive/audit/2025-01/1-420.jsonl
func archivePath(kind string, before time.Time, firstID, lastID int64) string {
	return fmt.Sprintf("archive/%s/%s/%d-%d.jsonl", kind, before.UTC().Format("2006-01"), firstID, lastID)
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*AuditArchiver)(nil)
