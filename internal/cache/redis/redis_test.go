package redis

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

// newTestClient connects to MINIDICT_TEST_REDIS_ADDR or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("MINIDICT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MINIDICT_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := New(ctx, ClientConfig{Addr: addr, KeyPrefix: "minidict-test-" + uuid.NewString() + ":"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKVCache_Roundtrip(t *testing.T) {
	ctx := context.Background()
	kc := NewKVCache(newTestClient(t))

	_, err := kc.Get(ctx, "tags")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, kc.Set(ctx, "tags", []byte(`[]`), time.Minute))
	got, err := kc.Get(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), got)

	require.NoError(t, kc.Delete(ctx, "tags"))
	_, err = kc.Get(ctx, "tags")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter(newTestClient(t))
	key := "test-" + uuid.NewString()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, key, 2, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Allow(ctx, key, 2, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLockManager_Exclusive(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager(newTestClient(t))
	key := "test-" + uuid.NewString()

	release, err := lm.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	release()
	release2, err := lm.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	release2()
}

func TestClient_KeyPrefix(t *testing.T) {
	c := &Client{prefix: "minidict:"}
	assert.Equal(t, "minidict:ratelimit:api:203.0.113.9", c.key("ratelimit:api:203.0.113.9"))
	assert.Equal(t, "minidict:cache:tags", (&KVCache{c: c}).key("tags"))
}
