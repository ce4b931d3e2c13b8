package smsotp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps pending codes in Redis; the TTL is the single source
// of truth for expiry.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis-backed code store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func codeKey(phone string) string {
	return "smsotp:code:" + phone
}

func (s *RedisStore) SaveCode(ctx context.Context, phone, codeHash string, ttl time.Duration) error {
	return s.client.Set(ctx, codeKey(phone), codeHash, ttl).Err()
}

func (s *RedisStore) LoadCodeHash(ctx context.Context, phone string) (string, error) {
	hash, err := s.client.Get(ctx, codeKey(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCodeExpired
	}
	if err != nil {
		return "", fmt.Errorf("load code: %w", err)
	}
	return hash, nil
}

func (s *RedisStore) DeleteCode(ctx context.Context, phone string) error {
	return s.client.Del(ctx, codeKey(phone)).Err()
}
