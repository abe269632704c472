package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/minidict/minidict/internal/domain"
)

// AuditStore implements domain.AuditStore on the audit_log table.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

const auditSelectCols = `id, event, detail, created_at`

// Log appends an audit entry. A string "address" in detail is also written
// to the indexed address column.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	if detail == nil {
		detail = map[string]any{}
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}

	var address *string
	if a, ok := detail["address"].(string); ok && a != "" {
		address = &a
	}

	const query = `INSERT INTO audit_log (event, address, detail) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, event, address, detailJSON); err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries newest first with pagination and optional
// time filtering.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query, args := buildAuditListQuery(opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	entries, err := collectAuditRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	return entries, nil
}

// ListBefore returns every entry created strictly before the cutoff, oldest
// first.
func (s *AuditStore) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	query := `SELECT ` + auditSelectCols + ` FROM audit_log WHERE created_at < $1 ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries before %s: %w", before.Format(time.RFC3339), err)
	}
	entries, err := collectAuditRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries before: %w", err)
	}
	return entries, nil
}

// DeleteUpTo removes entries created before the cutoff whose id is at most
// maxID, so rows inserted after an archive snapshot survive. It returns the
// number of rows deleted.
func (s *AuditStore) DeleteUpTo(ctx context.Context, before time.Time, maxID int64) (int64, error) {
	const query = `DELETE FROM audit_log WHERE created_at < $1 AND id <= $2`
	tag, err := s.pool.Exec(ctx, query, before, maxID)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete audit entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func buildAuditListQuery(opts domain.ListOpts) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(`SELECT ` + auditSelectCols + ` FROM audit_log WHERE 1=1`)

	if opts.Since != nil {
		args = append(args, *opts.Since)
		fmt.Fprintf(&b, " AND created_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		fmt.Fprintf(&b, " AND created_at <= $%d", len(args))
	}

	b.WriteString(" ORDER BY created_at DESC, id DESC")

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

func collectAuditRows(rows pgx.Rows) ([]domain.AuditEntry, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditEntry, error) {
		var (
			e          domain.AuditEntry
			detailJSON []byte
		)
		if err := row.Scan(&e.ID, &e.Event, &detailJSON, &e.CreatedAt); err != nil {
			return domain.AuditEntry{}, fmt.Errorf("scan audit entry: %w", err)
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return domain.AuditEntry{}, fmt.Errorf("unmarshal audit detail: %w", err)
			}
		}
		return e, nil
	})
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditStore)(nil)
