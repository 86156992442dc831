package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	nanoredis "github.com/dayuer/castbot/internal/redis"
)

// fixedWindowScript increments the counter, starts the window on the first
// hit and returns {count, remaining ms}.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisLimiter is a fixed-window Limiter evaluated atomically in Redis.
type RedisLimiter struct {
	client redis.UniversalClient
	window time.Duration
	max    int
}

// NewRedisLimiter creates a RedisLimiter.
func NewRedisLimiter(client redis.UniversalClient, window time.Duration, max int) *RedisLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if max <= 0 {
		max = DefaultMax
	}
	return &RedisLimiter{client: client, window: window, max: max}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, identity string) (Decision, error) {
	res, err := fixedWindowScript.Run(ctx, l.client,
		[]string{nanoredis.KeyRateLimit + identity},
		l.window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: allow %q: %w", identity, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}

	count := int(res[0])
	d := Decision{Allowed: count <= l.max, Count: count, Limit: l.max}
	if !d.Allowed {
		d.RetryAfter = time.Duration(res[1]) * time.Millisecond
	}
	return d, nil
}

// Reset implements Limiter.
func (l *RedisLimiter) Reset(ctx context.Context) error {
	return nanoredis.DeletePrefix(ctx, l.client, nanoredis.KeyRateLimit)
}

// Close is a no-op; the client is owned by the caller.
func (l *RedisLimiter) Close() error { return nil }
