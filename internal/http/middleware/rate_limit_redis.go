package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFixedWindowLimiter counts requests in clock-aligned windows shared by
// every API replica. Each window gets its own key, so INCR and PEXPIREAT can be
// sent together in one MULTI without a script.
type RedisFixedWindowLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisFixedWindowLimiter(client redis.UniversalClient, prefix string) *RedisFixedWindowLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisFixedWindowLimiter{client: client, prefix: prefix, now: time.Now}
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if window < time.Millisecond {
		window = time.Second
	}
	if l.client == nil {
		return Decision{RetryAfter: window}, errors.New("redis rate limiter: no client")
	}
	if key == "" {
		key = "unknown"
	}

	now := l.now()
	windowStart := now.Truncate(window)
	resetAt := windowStart.Add(window)
	storeKey := l.prefix + ":" + key + ":" + strconv.FormatInt(windowStart.UnixMilli(), 36)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, storeKey)
		p.PExpireAt(ctx, storeKey, resetAt)
		return nil
	})
	if err != nil {
		return Decision{RetryAfter: window}, fmt.Errorf("redis rate limiter: %w", err)
	}

	count := incr.Val()
	d := Decision{
		Allowed:   count <= int64(limit),
		Remaining: int(max(int64(limit)-count, 0)),
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		d.RetryAfter = max(resetAt.Sub(now), time.Millisecond)
	}
	return d, nil
}
