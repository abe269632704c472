package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/minidict/minidict/internal/domain"
)

// responseCache memoises upstream reads as JSON in a domain.Cache and
// collapses concurrent misses for the same key. A nil cache only collapses.
type responseCache struct {
	cache  domain.Cache
	group  singleflight.Group
	logger *slog.Logger
}

func newResponseCache(cache domain.Cache, logger *slog.Logger) *responseCache {
	return &responseCache{cache: cache, logger: logger}
}

// sharedLoadTimeout bounds a collapsed load, which runs detached from any
// single caller's cancellation.
const sharedLoadTimeout = time.Minute

// cached returns the value stored under key, or calls load, stores its
// result for ttl and returns it. Errors from load are never cached. Cache
// failures are logged and otherwise ignored.
//
// Concurrent misses share one load. The load keeps the first caller's
// context values but not its cancellation, and each caller stops waiting
// when its own ctx is done.
func cached[T any](ctx context.Context, rc *responseCache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if rc.cache != nil && ttl > 0 {
		if data, err := rc.cache.Get(ctx, key); err == nil {
			var v T
			if err := json.Unmarshal(data, &v); err == nil {
				return v, nil
			}
			rc.logger.WarnContext(ctx, "cache: discarding undecodable entry", slog.String("key", key))
		}
	}

	ch := rc.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()

		v, err := load(loadCtx)
		if err != nil {
			return v, err
		}
		if rc.cache != nil && ttl > 0 {
			data, mErr := json.Marshal(v)
			if mErr == nil {
				mErr = rc.cache.Set(loadCtx, key, data, ttl)
			}
			if mErr != nil {
				rc.logger.WarnContext(loadCtx, "cache: set failed",
					slog.String("key", key),
					slog.String("error", mErr.Error()),
				)
			}
		}
		return v, nil
	})

	select {
	case res := <-ch:
		v, _ := res.Val.(T)
		return v, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
