package csrf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenPrefix = "csrf:"

// RedisStore keeps tokens as expiring Redis keys
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis-backed token store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// SaveToken stores a token with expiration
func (s *RedisStore) SaveToken(ctx context.Context, token string, expiresIn time.Duration) error {
	if token == "" {
		return errors.New("empty token")
	}
	if expiresIn <= 0 {
		return ErrTokenExpired
	}

	if err := s.client.Set(ctx, tokenPrefix+token, "1", expiresIn).Err(); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	return nil
}

// ConsumeToken atomically removes the token. Expired keys are already gone,
// so expiry reads as an unknown token.
func (s *RedisStore) ConsumeToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}

	_, err := s.client.GetDel(ctx, tokenPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("consuming token: %w", err)
	}
	return nil
}

// CheckHealth verifies Redis connectivity
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
