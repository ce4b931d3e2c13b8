package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements Limiter on Redis counters.
type RedisLimiter struct {
	client redis.UniversalClient
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// CheckAndConsume increments the counter and applies the window TTL on the
// first hit only. INCR is atomic, so concurrent hits each get a distinct
// count and exactly `limit` of them are allowed per window.
func (l *RedisLimiter) CheckAndConsume(ctx context.Context, key Key, limit int, window time.Duration) (Decision, error) {
	k := key.String()

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, window).Err(); err != nil {
			return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	if count > int64(limit) {
		retry, err := l.client.TTL(ctx, k).Result()
		if err != nil || retry < 0 {
			retry = window
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}

	return Decision{Allowed: true, Remaining: limit - int(count)}, nil
}

// Check observes the counter without spending budget. Missing keys read as
// zero and do not reveal whether the subject exists.
func (l *RedisLimiter) Check(ctx context.Context, key Key, limit int) (Decision, error) {
	k := key.String()

	count, err := l.client.Get(ctx, k).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Decision{Allowed: true, Remaining: limit}, nil
		}
		return Decision{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if count >= int64(limit) {
		retry, err := l.client.TTL(ctx, k).Result()
		if err != nil || retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}

	remaining := limit - int(count)
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// Reset clears the counter, e.g. after a successful login.
func (l *RedisLimiter) Reset(ctx context.Context, key Key) error {
	if err := l.client.Del(ctx, key.String()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
