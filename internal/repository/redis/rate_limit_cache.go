package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"security-service/internal/client"
	"security-service/internal/models"
	"security-service/internal/ratelimit"
	"security-service/internal/util"
)

const (
	rateLimitPrefix   = "rate_limit:"
	breachDedupPrefix = "breach_dedup:"
)

// fixedWindowScript increments the counter for a key and compares against the
// limit in one server-side operation. The first increment arms the window
// TTL; a key left without TTL (e.g. after a partial failure) is re-armed.
// Returns {allowed, current_count, ttl_seconds}.
const fixedWindowScript = `
local current = redis.call('INCR', KEYS[1])
if current == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[2])
end
local ttl = redis.call('TTL', KEYS[1])
if ttl < 0 then
    redis.call('EXPIRE', KEYS[1], ARGV[2])
    ttl = tonumber(ARGV[2])
end
local allowed = 0
if current <= tonumber(ARGV[1]) then
    allowed = 1
end
return {allowed, current, ttl}
`

// RateLimitCache is the Redis side of the distributed counter and the
// breach-window dedup claims.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

// CheckFixedWindow performs the atomic increment-and-check for a key.
// Satisfies ratelimit.StoreCounter.
func (c *RateLimitCache) CheckFixedWindow(ctx context.Context, key string, limit, windowSeconds int) (*ratelimit.StoreResult, error) {
	result, err := c.client.Eval(ctx, fixedWindowScript,
		[]string{rateLimitPrefix + key}, limit, windowSeconds)
	if err != nil {
		util.Error("Failed to execute fixed window rate limit",
			zap.String("key", key),
			zap.Int("limit", limit),
			zap.Int("window_seconds", windowSeconds),
			zap.Error(err))
		return nil, fmt.Errorf("failed to execute fixed window rate limit: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 3 {
		return nil, fmt.Errorf("unexpected result format from fixed window script")
	}

	allowed, ok1 := resultSlice[0].(int64)
	currentCount, ok2 := resultSlice[1].(int64)
	ttl, ok3 := resultSlice[2].(int64)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("unexpected element types from fixed window script")
	}

	util.Debug("Fixed window rate limit check",
		zap.String("key", key),
		zap.Bool("allowed", allowed == 1),
		zap.Int64("current_count", currentCount),
		zap.Int("limit", limit))

	return &ratelimit.StoreResult{
		Allowed:      allowed == 1,
		CurrentCount: currentCount,
		ResetAt:      time.Now().Unix() + ttl,
	}, nil
}

// ClaimBreachWindow claims the single automated escalation slot for an
// (eventType, scope, window) triple. Returns false when another process
// already escalated this window. Best-effort: callers treat errors as an
// unclaimed window.
func (c *RateLimitCache) ClaimBreachWindow(ctx context.Context, eventType models.EventType, scopeKey string, windowStart int64, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("%s%s:%s:%d", breachDedupPrefix, eventType, scopeKey, windowStart)

	claimed, err := c.client.SetNX(ctx, key, "claimed", ttl)
	if err != nil {
		util.Error("Failed to claim breach window",
			zap.String("key", key),
			zap.Error(err))
		return false, fmt.Errorf("failed to claim breach window: %w", err)
	}

	return claimed, nil
}
