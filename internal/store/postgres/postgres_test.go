package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/minidict/minidict/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	testCases := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://u:p@db/x", Host: "ignored"},
			want: "postgres://u:p@db/x",
		},
		{
			name: "defaults port and sslmode",
			cfg:  ClientConfig{Host: "localhost", Database: "minidict", User: "app", Password: "pw"},
			want: "postgres://app:pw@localhost:5432/minidict?sslmode=disable",
		},
		{
			name: "custom port and sslmode",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "d", User: "u", Password: "p", SSLMode: "require"},
			want: "postgres://u:p@db:6543/d?sslmode=require",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DSN(tc.cfg))
		})
	}
}

func TestMigrationNames_Sorted(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "0001_audit_log.sql", names[0])
	assert.IsIncreasing(t, names)
}

func TestBuildAuditListQuery(t *testing.T) {
	since := time.Unix(100, 0)

	query, args := buildAuditListQuery(domain.ListOpts{Limit: 10, Offset: 20, Since: &since})
	assert.Equal(t,
		"SELECT id, event, detail, created_at FROM audit_log WHERE 1=1 AND created_at >= $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		query)
	assert.Equal(t, []any{since, 10, 20}, args)

	query, args = buildAuditListQuery(domain.ListOpts{})
	assert.Equal(t, "SELECT id, event, detail, created_at FROM audit_log WHERE 1=1 ORDER BY created_at DESC, id DESC", query)
	assert.Empty(t, args)
}

// TestAuditStore_Integration runs against MINIDICT_TEST_POSTGRES_DSN.
func TestAuditStore_Integration(t *testing.T) {
	dsn := os.Getenv("MINIDICT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MINIDICT_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.RunMigrations(ctx))
	require.NoError(t, c.RunMigrations(ctx), "migrations are idempotent")

	store := NewAuditStore(c.Pool())
	marker := uuid.NewString()
	require.NoError(t, store.Log(ctx, domain.AuditOrderPlaced, map[string]any{"marker": marker, "address": "0xabc"}))

	entries, err := store.ListBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)

	var found *domain.AuditEntry
	for i := range entries {
		if entries[i].Detail["marker"] == marker {
			found = &entries[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, domain.AuditOrderPlaced, found.Event)

	n, err := store.DeleteUpTo(ctx, time.Now().Add(time.Minute), found.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}
