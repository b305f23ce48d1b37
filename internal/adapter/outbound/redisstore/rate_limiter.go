// Package redisstore provides Redis-backed implementations of outbound ports
// for deployments where limiter state must survive process restarts and be
// shared across instances.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/conduit-mcp/conduit/internal/domain/ratelimit"
)

// checkScript runs the whole sliding-window check as one atomic unit on the
// Redis side: prune, count, conditional admit, expiry refresh. Redis executes
// scripts serially per server, which gives exactly one in-flight mutation per
// key with no client-side locking.
//
// KEYS[1] = window zset, ARGV = now_ms, window_ms, limit, member.
// Returns {allowed, used_before_admit, reset_at_ms}.
var checkScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local used = redis.call('ZCARD', KEYS[1])

local allowed = 0
if used < limit then
	allowed = 1
	redis.call('ZADD', KEYS[1], now, ARGV[4])
	redis.call('PEXPIRE', KEYS[1], window)
end

local reset = now + window
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if oldest[2] then
	reset = tonumber(oldest[2]) + window
end

return {allowed, used, reset}
`)

// RateLimiter implements ratelimit.Limiter on Redis sorted sets. State is
// durable across process instances: every gateway replica pointing at the
// same Redis shares one window per identity.
type RateLimiter struct {
	client redis.UniversalClient
}

// New creates a Redis-backed rate limiter using the given client.
func New(client redis.UniversalClient) *RateLimiter {
	return &RateLimiter{client: client}
}

// Check runs one sliding-window check-and-admit for the key.
//
// Fails closed: any Redis error is wrapped in ratelimit.ErrStoreUnavailable
// and the request must be rejected by the caller. An unreachable store never
// turns into unlimited traffic.
func (r *RateLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Result, error) {
	now := time.Now()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	raw, err := checkScript.Run(ctx, r.client, []string{key},
		now.UnixMilli(), window.Milliseconds(), limit, member).Result()
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("%w: %v", ratelimit.ErrStoreUnavailable, err)
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 3 {
		return ratelimit.Result{}, fmt.Errorf("%w: unexpected script reply %T", ratelimit.ErrStoreUnavailable, raw)
	}
	allowed := toInt64(vals[0]) == 1
	used := int(toInt64(vals[1]))
	resetAt := time.UnixMilli(toInt64(vals[2]))

	remaining := limit - used
	if allowed {
		remaining--
	}
	if remaining < 0 {
		remaining = 0
	}

	resetAfter := resetAt.Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}

	return ratelimit.Result{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
		ResetAt:    resetAt,
	}, nil
}

// toInt64 normalizes Lua script reply values.
func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	default:
		return 0
	}
}

// Compile-time interface verification.
var _ ratelimit.Limiter = (*RateLimiter)(nil)
