package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minidict/minidict/internal/domain"
	"github.com/redis/go-redis/v9"
)

// KVCache implements domain.Cache with plain Redis strings.
//
// Key schema:
//
//	{prefix}cache:{key} - raw value bytes, expiring after the entry TTL
type KVCache struct {
	rdb *redis.Client
	c   *Client
}

// NewKVCache creates a KVCache on c.
func NewKVCache(c *Client) *KVCache {
	return &KVCache{rdb: c.rdb, c: c}
}

func (kc *KVCache) key(k string) string { return kc.c.key("cache:" + k) }

// Get returns the cached value or domain.ErrNotFound.
func (kc *KVCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := kc.rdb.Get(ctx, kc.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return data, nil
}

// Set stores value for ttl. A non-positive ttl stores without expiry.
func (kc *KVCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := kc.rdb.Set(ctx, kc.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (kc *KVCache) Delete(ctx context.Context, key string) error {
	if err := kc.rdb.Del(ctx, kc.key(key)).Err(); err != nil {
		return fmt.Errorf("redis: delete %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.Cache = (*KVCache)(nil)
