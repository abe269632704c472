package memory

import (
	"context"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/minidict/minidict/internal/domain"
)

// RateLimiter implements domain.RateLimiter with one token bucket per key.
// A bucket refills limit tokens per window and holds at most limit tokens.
// Idle buckets are evicted after idleTTL.
type RateLimiter struct {
	buckets *gocache.Cache
	idleTTL time.Duration
}

// NewRateLimiter creates a limiter that forgets keys idle for idleTTL.
func NewRateLimiter(idleTTL time.Duration) *RateLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		buckets: gocache.New(idleTTL, idleTTL),
		idleTTL: idleTTL,
	}
}

// Allow reports whether one more request for key fits the budget.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}

	// The bucket parameters are part of the key so callers with different
	// budgets never share a bucket.
	bucketKey := key + "|" + strconv.Itoa(limit) + "|" + window.String()

	lim := rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
	if err := rl.buckets.Add(bucketKey, lim, rl.idleTTL); err != nil {
		if v, ok := rl.buckets.Get(bucketKey); ok {
			lim = v.(*rate.Limiter)
		}
	}
	// Refresh the idle expiry.
	rl.buckets.Set(bucketKey, lim, rl.idleTTL)

	return lim.Allow(), nil
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
