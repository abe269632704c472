package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/minidict/minidict/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuditStore struct {
	mock.Mock
}

func (m *MockAuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	return m.Called(ctx, event, detail).Error(0)
}

func (m *MockAuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).([]domain.AuditEntry), args.Error(1)
}

func (m *MockAuditStore) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, before)
	return args.Get(0).([]domain.AuditEntry), args.Error(1)
}

func (m *MockAuditStore) DeleteUpTo(ctx context.Context, before time.Time, maxID int64) (int64, error) {
	args := m.Called(ctx, before, maxID)
	return args.Get(0).(int64), args.Error(1)
}

type fakeBlob struct {
	objects map[string][]byte
	puts    int
}

func (f *fakeBlob) Upload(_ context.Context, key string, body []byte, _ string) error {
	f.objects[key] = append([]byte(nil), body...)
	f.puts++
	return nil
}

func (f *fakeBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := f.objects[path]
	return ok, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveAudit_UploadsThenPrunes(t *testing.T) {
	ctx := context.Background()
	before := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := []domain.AuditEntry{
		{ID: 7, Event: domain.AuditOrderPlaced, Detail: map[string]any{"orderId": "a"}},
		{ID: 9, Event: domain.AuditOrderFailed, Detail: map[string]any{"error": "b"}},
	}

	store := &MockAuditStore{}
	store.On("ListBefore", ctx, before).Return(entries, nil)
	store.On("DeleteUpTo", ctx, before, int64(9)).Return(int64(2), nil)
	store.On("Log", ctx, domain.AuditArchiveAudit, mock.MatchedBy(func(d map[string]any) bool {
		return d["path"] == "archive/audit/2025-03/7-9.jsonl" && d["count"] == int64(2)
	})).Return(nil)

	blob := &fakeBlob{objects: map[string][]byte{}}
	n, err := NewAuditArchiver(blob, store, testLogger()).ArchiveAudit(ctx, before)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	store.AssertExpectations(t)

	body, ok := blob.objects["archive/audit/2025-03/7-9.jsonl"]
	require.True(t, ok)

	var lines int
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var e domain.AuditEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestArchiveAudit_NothingToDo(t *testing.T) {
	ctx := context.Background()
	before := time.Now()

	store := &MockAuditStore{}
	store.On("ListBefore", ctx, before).Return([]domain.AuditEntry{}, nil)

	blob := &fakeBlob{objects: map[string][]byte{}}
	n, err := NewAuditArchiver(blob, store, testLogger()).ArchiveAudit(ctx, before)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, blob.puts)
	store.AssertNotCalled(t, "DeleteUpTo", mock.Anything, mock.Anything, mock.Anything)
}

func TestArchiveAudit_ExistingObjectIsNotReuploaded(t *testing.T) {
	ctx := context.Background()
	before := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	store := &MockAuditStore{}
	store.On("ListBefore", ctx, before).Return([]domain.AuditEntry{{ID: 3}}, nil)
	store.On("DeleteUpTo", ctx, before, int64(3)).Return(int64(1), nil)
	store.On("Log", ctx, domain.AuditArchiveAudit, mock.Anything).Return(nil)

	blob := &fakeBlob{objects: map[string][]byte{"archive/audit/2025-03/3-3.jsonl": []byte("{}\n")}}
	n, err := NewAuditArchiver(blob, store, testLogger()).ArchiveAudit(ctx, before)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, blob.puts)
}

func TestArchiveAudit_UploadFailureKeepsRows(t *testing.T) {
	ctx := context.Background()
	before := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	store := &MockAuditStore{}
	store.On("ListBefore", ctx, before).Return([]domain.AuditEntry{{ID: 1}}, nil)

	n, err := NewAuditArchiver(failingBlob{}, store, testLogger()).ArchiveAudit(ctx, before)
	assert.Error(t, err)
	assert.Zero(t, n)
	store.AssertNotCalled(t, "DeleteUpTo", mock.Anything, mock.Anything, mock.Anything)
}

type failingBlob struct{}

func (failingBlob) Upload(context.Context, string, []byte, string) error { return assert.AnError }
func (failingBlob) Exists(context.Context, string) (bool, error)         { return false, nil }

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
}
