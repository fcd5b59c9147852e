package flush

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a fixed-window request budget per client IP,
// backed by Redis INCR + EXPIRE.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter builds a RateLimiter allowing limit requests per
// window per IP.
func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: rdb, limit: limit, window: window}
}

// Allow increments the counter for ip and reports whether the request
// is within budget.
func (rl *RateLimiter) Allow(ctx context.Context, ip string) (bool, error) {
	key := fmt.Sprintf("flush_ratelimit:%s", ip)

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("checking flush rate limit: %w", err)
	}

	// Only the first request in a window sets the expiry, so the
	// window is fixed rather than reset on every hit.
	if incr.Val() == 1 {
		rl.redis.Expire(ctx, key, rl.window)
	}

	return incr.Val() <= int64(rl.limit), nil
}
