package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "feellog:rl:"

var errUnexpectedReply = errors.New("ratelimit: unexpected redis response")

var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local current = redis.call("INCR", key)
if current == 1 then
  redis.call("PEXPIRE", key, window_ms)
end

local ttl = redis.call("PTTL", key)
if ttl < 0 then
  ttl = window_ms
end

if current > limit then
  return {0, ttl}
end
return {1, ttl}
`)

// RedisLimiter shares counters across API replicas.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedis builds a limiter storing counters under prefix.
func NewRedis(client *redis.Client, limit int, window time.Duration, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisLimiter{client: client, limit: limit, window: window, prefix: prefix}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, _ time.Time) (bool, time.Duration, error) {
	windowMS := l.window.Milliseconds()
	if windowMS <= 0 {
		return false, 0, errors.New("ratelimit: invalid window")
	}

	res, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + key}, l.limit, windowMS).Result()
	if err != nil {
		return false, 0, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return false, 0, errUnexpectedReply
	}
	allowed, ok := vals[0].(int64)
	if !ok {
		return false, 0, errUnexpectedReply
	}
	ttlMS, ok := vals[1].(int64)
	if !ok {
		return false, 0, errUnexpectedReply
	}

	retryAfter := time.Duration(ttlMS) * time.Millisecond
	if retryAfter < 0 {
		retryAfter = 0
	}
	return allowed == 1, retryAfter, nil
}
