package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "assistd:ratelimit:"

// fixedWindowScript admits when the counter is below ARGV[2]. The window's
// expiry is set only by the first hit, so rejected requests never extend it.
// Returns {allowed, count, pttl}.
var fixedWindowScript = redis.NewScript(`
	local count = tonumber(redis.call("GET", KEYS[1]) or "0")
	local ttl = redis.call("PTTL", KEYS[1])
	if count > 0 and ttl > 0 and count >= tonumber(ARGV[2]) then
		return {0, count, ttl}
	end
	if ttl <= 0 then
		redis.call("SET", KEYS[1], 1, "PX", ARGV[1])
		return {1, 1, tonumber(ARGV[1])}
	end
	count = redis.call("INCR", KEYS[1])
	return {1, count, ttl}
`)

// RedisLimiter shares fixed-window counters between instances through Redis.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisLimiter creates a limiter backed by client.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now}
}

// NewRedisLimiterFromURL parses a redis:// URL and pings the server.
func NewRedisLimiterFromURL(ctx context.Context, url string) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return NewRedisLimiter(client), nil
}

// CheckAndConsume implements Limiter.
func (l *RedisLimiter) CheckAndConsume(ctx context.Context, key string, window time.Duration, max int) (Result, error) {
	now := l.now()
	res, err := fixedWindowScript.Run(ctx, l.client, []string{redisKeyPrefix + key}, window.Milliseconds(), max).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(res) != 3 {
		return Result{}, fmt.Errorf("%w: unexpected script reply %v", ErrBackendUnavailable, res)
	}

	allowed, count, ttl := res[0] == 1, int(res[1]), res[2]
	out := Result{
		Allowed:   allowed,
		Limit:     max,
		Remaining: remaining(max, count),
		ResetAt:   now.Add(time.Duration(ttl) * time.Millisecond),
	}
	if !allowed {
		out.Remaining = 0
	}
	return out, nil
}

// Reset implements Limiter.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
