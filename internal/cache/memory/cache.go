// Package memory provides in-process implementations of the cache, rate
// limiter and lock interfaces for single-replica deployments.
package memory

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/minidict/minidict/internal/domain"
)

// Cache implements domain.Cache on top of go-cache.
type Cache struct {
	c *gocache.Cache
}

// NewCache creates a cache whose expired entries are purged every
// cleanupInterval.
func NewCache(cleanupInterval time.Duration) *Cache {
	return &Cache{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Get returns the cached value or domain.ErrNotFound.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.c.Get(key)
	if !ok {
		return nil, domain.ErrNotFound
	}
	b, _ := v.([]byte)
	return b, nil
}

// Set stores a copy of value for ttl. A non-positive ttl never expires.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c.c.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// Delete removes key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Delete(key)
	return nil
}

var _ domain.Cache = (*Cache)(nil)
