package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterClient is the slice of the Redis API the limiter needs.
type counterClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// RedisLimiter implements Limiter as a fixed one-minute window counter
// shared by every gateway replica. Each (key, window) pair is one Redis
// counter that expires with its window.
type RedisLimiter struct {
	client counterClient
	prefix string
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter connects to redisURL (redis://[:password@]host:port/db).
func NewRedisLimiter(redisURL string) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return newRedisLimiter(redis.NewClient(opts)), nil
}

func newRedisLimiter(c counterClient) *RedisLimiter {
	return &RedisLimiter{client: c, prefix: "ratelimit:", window: time.Minute, now: time.Now}
}

// Allow implements Limiter. q is converted to a per-window request count.
func (l *RedisLimiter) Allow(ctx context.Context, key string, q Quota) (bool, time.Duration, error) {
	now := l.now()
	start := now.Truncate(l.window)
	k := l.prefix + key + ":" + strconv.FormatInt(start.Unix(), 10)

	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit incr: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	if n > q.PerWindow(l.window) {
		return false, start.Add(l.window).Sub(now), nil
	}
	return true, 0, nil
}

// Close releases the Redis connection pool.
func (l *RedisLimiter) Close() error { return l.client.Close() }
