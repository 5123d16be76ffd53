package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores each session as a Redis hash so sessions are shared
// between replicas. Every write extends the hash's expiry.
type RedisBackend struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisBackend creates a RedisBackend. A zero ttl disables expiry.
func NewRedisBackend(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (b *RedisBackend) key(id string) string {
	return b.keyPrefix + "session:" + id
}

// Get implements Backend.
func (b *RedisBackend) Get(ctx context.Context, id, key string) (string, bool, error) {
	v, err := b.client.HGet(ctx, b.key(id), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("session: redis hget: %w", err)
	}
	return v, true, nil
}

// Set implements Backend.
func (b *RedisBackend) Set(ctx context.Context, id, key, value string) error {
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.key(id), key, value)
	if b.ttl > 0 {
		pipe.Expire(ctx, b.key(id), b.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: redis hset: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (b *RedisBackend) Delete(ctx context.Context, id, key string) error {
	if err := b.client.HDel(ctx, b.key(id), key).Err(); err != nil {
		return fmt.Errorf("session: redis hdel: %w", err)
	}
	return nil
}

// Destroy implements Backend.
func (b *RedisBackend) Destroy(ctx context.Context, id string) error {
	if err := b.client.Del(ctx, b.key(id)).Err(); err != nil {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}
