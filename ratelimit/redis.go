package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRedisNotReady = errors.New("redis did not become ready")

// Connect parses url and pings the server, retrying until ctx is done or
// attempts run out.
func Connect(ctx context.Context, url string, attempts int, interval time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if attempts < 1 {
		attempts = 1
	}
	for range attempts {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, ErrRedisNotReady
}

// RedisLimiter keeps fixed-window counters in Redis so every API instance
// shares the same budget. When Redis is unreachable requests are allowed and
// the failure is logged.
type RedisLimiter struct {
	client redis.UniversalClient
	window Window
	prefix string
	logger *slog.Logger
}

func NewRedisLimiter(client redis.UniversalClient, w Window, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "tutorauth:rl:"
	}
	return &RedisLimiter{client: client, window: w, prefix: prefix, logger: slog.Default()}
}

// Allow increments the key's counter and sets its expiry on first use. The
// expiry is set with a plain EXPIRE when the key has no TTL, which works on
// any Redis version.
func (r *RedisLimiter) Allow(ctx context.Context, key string) bool {
	k := r.prefix + key
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.TTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("rate limiter unavailable, allowing request", "error", err)
		return true
	}
	if ttl.Val() < 0 {
		if err := r.client.Expire(ctx, k, r.window.Period).Err(); err != nil {
			r.logger.Warn("rate limiter could not set expiry", "key", k, "error", err)
		}
	}
	return incr.Val() <= int64(r.window.Max)
}
