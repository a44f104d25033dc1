package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig is the configuration for the Redis cache backend.
// Addr: Redis address in host:port form (required)
// Password: Redis password, empty if auth is disabled
// DB: Redis logical database number
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisBackend implements Backend on top of a Redis server.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend creates a Redis cache backend and verifies connectivity.
//
// Args:
//   - ctx: Context for the connectivity check
//   - cfg: Redis configuration
//
// Returns:
//   - *RedisBackend: Redis backend instance
//   - error: Returns an error if the server is unreachable
func NewRedisBackend(ctx context.Context, cfg *RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &RedisBackend{client: client}, nil
}

// Get returns the value stored under key, or ErrCacheMiss if absent.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set stores value under key with the given TTL.
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

// DeleteByPrefix removes every key starting with prefix using SCAN, so large
// keyspaces are walked incrementally instead of blocking the server.
func (b *RedisBackend) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	var deleted int

	iter := b.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := b.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, err
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}

	return deleted, nil
}

// Close closes the Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
