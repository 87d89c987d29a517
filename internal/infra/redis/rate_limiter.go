package redis

import (
	"context"
	"fmt"
	"time"

	"ai-prompt-enhancer/internal/infra/ratelimit"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ ratelimit.KeyedBackend = (*SlidingWindowLimiter)(nil)

// SlidingWindowLimiter keeps one sorted set per key, scored by request time in
// milliseconds. The check-and-add runs as a single script so concurrent
// handlers cannot both take the last slot.
type SlidingWindowLimiter struct {
	cli *redis.Client
	now func() time.Time
}

func NewSlidingWindowLimiter(client *Client) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{cli: client.cli, now: time.Now}
}

// KEYS[1] key; ARGV: now_ms, window_ms, max, member.
// Returns {allowed, count, oldest_ms}.
var luaSlidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if max > 0 and count < max then
	redis.call("ZADD", KEYS[1], now, ARGV[4])
	count = count + 1
	allowed = 1
end
redis.call("PEXPIRE", KEYS[1], window)
local oldest = now
local first = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if first[2] then
	oldest = tonumber(first[2])
end
return {allowed, count, oldest}`)

func (l *SlidingWindowLimiter) Check(ctx context.Context, key string, window time.Duration, max int) (ratelimit.Decision, error) {
	now := l.now()
	nowMs := now.UnixMilli()
	res, err := luaSlidingWindow.Run(ctx, l.cli, []string{key},
		nowMs, window.Milliseconds(), max, fmt.Sprintf("%d-%s", nowMs, uuid.NewString())).Result()
	if err != nil {
		return ratelimit.Decision{}, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return ratelimit.Decision{}, fmt.Errorf("sliding window: unexpected reply %v", res)
	}
	allowed, _ := vals[0].(int64)
	count, _ := vals[1].(int64)
	oldest, _ := vals[2].(int64)

	d := ratelimit.Decision{
		Allowed: allowed == 1,
		Limit:   max,
		ResetAt: time.UnixMilli(oldest).Add(window),
	}
	if d.Allowed {
		d.Remaining = max - int(count)
		return d, nil
	}
	if count == 0 {
		d.ResetAt = now.Add(window)
	}
	d.RetryAfter = d.ResetAt.Sub(now)
	if d.RetryAfter < time.Second {
		d.RetryAfter = time.Second
	}
	return d, nil
}
