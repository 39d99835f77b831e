package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/stayhive/guesthouse-reservations/internal/adapters/redis"
)

// RateLimiter counts requests per key in fixed windows. A limiter outage
// must not take reservations down, so redis errors fail open.
type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	k := "rl:" + key

	pipe := rl.redis.Client().TxPipeline()
	count := pipe.Incr(ctx, k)
	// NX: the window starts at the first hit and is not extended by later ones
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true
	}

	return count.Val() <= int64(limit)
}
