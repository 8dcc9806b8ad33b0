package inflight

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"linkrelay/internal/constants"
)

type RedisRegistry struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisRegistry(client *redis.Client, keyPrefix string) *RedisRegistry {
	if keyPrefix == "" {
		keyPrefix = constants.CacheKeyPrefixInFlight
	}
	return &RedisRegistry{client: client, keyPrefix: keyPrefix}
}

func (r *RedisRegistry) Reserve(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.keyPrefix+token, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return ok, nil
}

func (r *RedisRegistry) Release(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, r.keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}
