// Package ratelimit provides a Redis-backed fixed window rate limiter
// shared across server replicas.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithExpiry bumps the window counter and stamps the TTL on first use,
// so idle keys expire on their own.
var incrWithExpiry = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// FixedWindowLimiter caps the number of calls per key within a fixed
// window. Counters live in Redis so every replica shares the same quota.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	client *redis.Client
	prefix string
}

// NewRedisFixedWindowLimiter connects to Redis at addr and returns a
// limiter allowing limit calls per key per window.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "audioscribe:ratelimit"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &FixedWindowLimiter{limit: limit, window: window, client: client, prefix: prefix}, nil
}

// Allow reports whether key still has quota in the current window.
// Redis errors count as denial so an outage cannot disable the limit.
func (l *FixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return false
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "unknown"
	}
	ms := l.window.Milliseconds()
	if ms <= 0 {
		return true
	}
	slot := time.Now().UTC().UnixMilli() / ms
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := incrWithExpiry.Run(ctx, l.client, []string{redisKey}, ms).Int64()
	if err != nil {
		return false
	}
	return n <= int64(l.limit)
}
