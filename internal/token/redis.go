package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/Mattheo4427/eventy-core/pkg/errors"
)

const redisKeyPrefix = "eventy:token:"

// RedisStore keeps the token in Redis under a per-device key with a TTL, for
// kiosk and shared-terminal deployments where the process has no durable
// local disk. The TTL bounds how long a stale token can outlive its device.
type RedisStore struct {
	client   *redis.Client
	deviceID string
	ttl      time.Duration
}

// NewRedisStore creates a Redis-backed token store scoped to a device id.
func NewRedisStore(client *redis.Client, deviceID string, ttl time.Duration) (*RedisStore, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	return &RedisStore{
		client:   client,
		deviceID: deviceID,
		ttl:      ttl,
	}, nil
}

func (s *RedisStore) key() string {
	return redisKeyPrefix + s.deviceID
}

// Save persists the token with the configured TTL.
func (s *RedisStore) Save(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key(), token, s.ttl).Err(); err != nil {
		return apperrors.StorageUnavailable(fmt.Errorf("redis set token: %w", err))
	}
	return nil
}

// Load retrieves the token; a missing key is reported as ErrTokenAbsent.
func (s *RedisStore) Load(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, s.key()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperrors.ErrTokenAbsent
		}
		return "", apperrors.StorageUnavailable(fmt.Errorf("redis get token: %w", err))
	}
	return val, nil
}

// Clear removes the token key. Clearing an absent token is a no-op.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key()).Err(); err != nil {
		return apperrors.StorageUnavailable(fmt.Errorf("redis del token: %w", err))
	}
	return nil
}
