package authserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wrale/oauth2-device-login/internal/validation"
)

const (
	devicePrefix  = "device:"
	userPrefix    = "user:"
	refreshPrefix = "refresh:"
	attemptPrefix = "attempts:"
	pollPrefix    = "poll:"

	maxDecideRetries = 3
)

// RedisStore implements the Store interface using Redis
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// CheckHealth verifies Redis connectivity
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// SaveDeviceCode stores a device code and its user code index with matching expiry
func (s *RedisStore) SaveDeviceCode(ctx context.Context, code *DeviceCode) error {
	ttl := time.Until(code.ExpiresAt.Add(ExpiredRetention))
	if ttl <= 0 {
		return errors.New("code has already expired")
	}

	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("marshaling device code: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, devicePrefix+code.DeviceCode, data, ttl)
	pipe.Set(ctx, userPrefix+validation.NormalizeCode(code.UserCode), code.DeviceCode, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving device code: %w", err)
	}

	return nil
}

// GetDeviceCode retrieves a device code
func (s *RedisStore) GetDeviceCode(ctx context.Context, deviceCode string) (*DeviceCode, error) {
	data, err := s.client.Get(ctx, devicePrefix+deviceCode).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting device code: %w", err)
	}

	var code DeviceCode
	if err := json.Unmarshal(data, &code); err != nil {
		return nil, fmt.Errorf("unmarshaling device code: %w", err)
	}

	return &code, nil
}

// GetDeviceCodeByUserCode retrieves a device code using the user code
func (s *RedisStore) GetDeviceCodeByUserCode(ctx context.Context, userCode string) (*DeviceCode, error) {
	deviceCode, err := s.client.Get(ctx, userPrefix+validation.NormalizeCode(userCode)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting user code reference: %w", err)
	}

	return s.GetDeviceCode(ctx, deviceCode)
}

// DecideDeviceCode records a decision under WATCH so that only a pending
// code changes, and concurrent deciders cannot overwrite each other
func (s *RedisStore) DecideDeviceCode(ctx context.Context, deviceCode string, status Status, subject string) (*DeviceCode, error) {
	key := devicePrefix + deviceCode

	var decided *DeviceCode
	txf := func(tx *redis.Tx) error {
		decided = nil

		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var code DeviceCode
		if err := json.Unmarshal(data, &code); err != nil {
			return fmt.Errorf("unmarshaling device code: %w", err)
		}
		if code.Status != StatusPending {
			return nil
		}

		code.Status = status
		code.Subject = subject
		data, err = json.Marshal(code)
		if err != nil {
			return fmt.Errorf("marshaling device code: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		decided = &code
		return nil
	}

	for i := 0; i < maxDecideRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("deciding device code: %w", err)
		}
		return decided, nil
	}
	return nil, errors.New("deciding device code: too many concurrent updates")
}

// ConsumeDeviceCode deletes a device code and its associated keys in one
// transaction. Only the caller whose DEL removed the code key wins.
func (s *RedisStore) ConsumeDeviceCode(ctx context.Context, code *DeviceCode) (bool, error) {
	pipe := s.client.TxPipeline()
	removed := pipe.Del(ctx, devicePrefix+code.DeviceCode)
	pipe.Del(ctx,
		userPrefix+validation.NormalizeCode(code.UserCode),
		attemptPrefix+code.DeviceCode,
		pollPrefix+code.DeviceCode,
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("consuming device code: %w", err)
	}

	return removed.Val() == 1, nil
}

// RecordPoll swaps in the latest poll time; the key expires with the code
func (s *RedisStore) RecordPoll(ctx context.Context, code *DeviceCode, at time.Time) (time.Time, error) {
	key := pollPrefix + code.DeviceCode

	pipe := s.client.TxPipeline()
	prev := pipe.GetSet(ctx, key, at.UnixNano())
	pipe.ExpireAt(ctx, key, code.ExpiresAt.Add(ExpiredRetention))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return time.Time{}, fmt.Errorf("recording poll: %w", err)
	}

	last, err := prev.Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading previous poll: %w", err)
	}
	return time.Unix(0, last), nil
}

// SaveRefreshGrant stores a refresh token until its grant expires
func (s *RedisStore) SaveRefreshGrant(ctx context.Context, token string, grant *RefreshGrant) error {
	ttl := time.Until(grant.ExpiresAt)
	if ttl <= 0 {
		return errors.New("refresh grant has already expired")
	}

	data, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("marshaling refresh grant: %w", err)
	}

	if err := s.client.Set(ctx, refreshPrefix+token, data, ttl).Err(); err != nil {
		return fmt.Errorf("saving refresh grant: %w", err)
	}
	return nil
}

// GetRefreshGrant retrieves the grant for a refresh token
func (s *RedisStore) GetRefreshGrant(ctx context.Context, token string) (*RefreshGrant, error) {
	data, err := s.client.Get(ctx, refreshPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting refresh grant: %w", err)
	}

	var grant RefreshGrant
	if err := json.Unmarshal(data, &grant); err != nil {
		return nil, fmt.Errorf("unmarshaling refresh grant: %w", err)
	}
	return &grant, nil
}

// DeleteRefreshGrant revokes a refresh token
func (s *RedisStore) DeleteRefreshGrant(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, refreshPrefix+token).Err(); err != nil {
		return fmt.Errorf("deleting refresh grant: %w", err)
	}
	return nil
}

// CountAttempts counts verification attempts within the window using a sorted set
func (s *RedisStore) CountAttempts(ctx context.Context, deviceCode string, window time.Duration) (int, error) {
	now := time.Now()
	min := strconv.FormatInt(now.Add(-window).UnixNano(), 10)
	max := strconv.FormatInt(now.UnixNano(), 10)

	count, err := s.client.ZCount(ctx, attemptPrefix+deviceCode, min, max).Result()
	if err != nil {
		return 0, fmt.Errorf("getting attempt count: %w", err)
	}
	return int(count), nil
}

// RecordAttempt adds a timestamped attempt; the set expires with the device code
func (s *RedisStore) RecordAttempt(ctx context.Context, deviceCode string) error {
	code, err := s.GetDeviceCode(ctx, deviceCode)
	if err != nil {
		return err
	}
	if code == nil {
		return ErrInvalidGrant
	}

	now := time.Now().UnixNano()
	key := attemptPrefix + deviceCode

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now),
		Member: strconv.FormatInt(now, 10),
	})
	pipe.ExpireAt(ctx, key, code.ExpiresAt.Add(ExpiredRetention))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording attempt: %w", err)
	}
	return nil
}
