package redisinfra

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-signup-verify/internal/domain"
	"github.com/redis/go-redis/v9"
)

// reserveLua increments the counter unless it already reached the max.
// The window starts with the first increment and is carried by the key TTL.
const reserveLua = `
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
local max = tonumber(ARGV[1])
if count >= max then
  return {0, redis.call("PTTL", KEYS[1])}
end
count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {1, 0}
`

const releaseLua = `
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count <= 1 then
  redis.call("DEL", KEYS[1])
  return 0
end
return redis.call("DECR", KEYS[1])
`

// WindowLimiter is the Redis-backed resend limiter. Counts are shared by
// every instance pointing at the same Redis.
type WindowLimiter struct {
	rdb     *redis.Client
	prefix  string
	max     int
	window  time.Duration
	reserve *redis.Script
	release *redis.Script
}

func NewWindowLimiter(rdb *redis.Client, prefix string, max int, window time.Duration) *WindowLimiter {
	if prefix == "" {
		prefix = "verify:resend:"
	}
	return &WindowLimiter{
		rdb:     rdb,
		prefix:  prefix,
		max:     max,
		window:  window,
		reserve: redis.NewScript(reserveLua),
		release: redis.NewScript(releaseLua),
	}
}

func (l *WindowLimiter) Reserve(ctx context.Context, key string) error {
	res, err := l.reserve.Run(ctx, l.rdb, []string{l.prefix + key}, l.max, l.window.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("resend limiter eval: %w", err)
	}
	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return fmt.Errorf("resend limiter invalid result %v", res)
	}
	if toInt64(values[0]) == 1 {
		return nil
	}
	retry := time.Duration(toInt64(values[1])) * time.Millisecond
	if retry < 0 {
		retry = l.window
	}
	return &domain.RateLimitError{Limit: l.max, RetryAfter: retry}
}

func (l *WindowLimiter) Release(ctx context.Context, key string) error {
	if err := l.release.Run(ctx, l.rdb, []string{l.prefix + key}).Err(); err != nil {
		return fmt.Errorf("resend limiter release: %w", err)
	}
	return nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		if parsed, err := strconv.ParseInt(t, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
