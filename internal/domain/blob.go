package domain

import (
	"context"
	"time"
)

// ArchiveStore is cold object storage for archived audit batches.
type ArchiveStore interface {
	// Upload stores body under key, replacing any existing object.
	Upload(ctx context.Context, key string, body []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Archiver moves old audit rows to cold storage.
type Archiver interface {
	ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
}
