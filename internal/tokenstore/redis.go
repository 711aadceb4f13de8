package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wrale/oauth2-device-login/internal/deviceflow"
)

const tokenPrefix = "token:"

// RedisStore implements the Store interface using Redis
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a new Redis-backed token store. Keys are namespaced
// under prefix, which may be empty.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + tokenPrefix + k
}

// Save stores a token set with a TTL matching its useful lifetime
func (s *RedisStore) Save(ctx context.Context, key string, token *deviceflow.TokenResponse) error {
	ttl := ttlFor(token, time.Now())
	if ttl < 0 {
		return errors.New("token has already expired")
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}

	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

// Load retrieves a stored token set
func (s *RedisStore) Load(ctx context.Context, key string) (*deviceflow.TokenResponse, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting token: %w", err)
	}

	var token deviceflow.TokenResponse
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("unmarshaling token: %w", err)
	}
	return &token, nil
}

// Delete removes a stored token set
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("deleting token: %w", err)
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
