package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RequestLimiter is a fixed-window counter used for per-client API rate
// limiting. It is deliberately coarse; the trading volume limits have their
// own accumulator.
type RequestLimiter struct {
	rdb *redis.Client
}

// NewRequestLimiter creates a RequestLimiter backed by the given Client.
func NewRequestLimiter(c *Client) *RequestLimiter {
	return &RequestLimiter{rdb: c.Underlying()}
}

// Allow increments the window counter for key and reports whether the count
// is still within limit. The first hit of a window sets its expiry.
func (rl *RequestLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := rl.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit incr %s: %w", key, err)
	}
	if count == 1 {
		if err := rl.rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("redis: rate limit expire %s: %w", key, err)
		}
	}
	return count <= int64(limit), nil
}
