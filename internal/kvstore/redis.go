package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis.
// Counters are plain Redis strings mutated with INCRBY; TTLs are applied
// with EXPIRE NX so an existing window keeps its original expiry unless the
// record type asks for refresh-on-write. This is the production backend for
// distributed deployments with multiple edge instances.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig contains configuration for Redis storage.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore creates a new Redis store and verifies connectivity.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Get retrieves the value for the given key from Redis.
func (rs *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := rs.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get key from Redis: %w", err)
	}

	return val, true, nil
}

// Set stores a value under the key in Redis with a TTL.
func (rs *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := rs.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key in Redis: %w", err)
	}
	return nil
}

// IncrBy atomically adds delta to the integer stored at key.
// INCRBY and the expiry update run in a single pipeline; EXPIRE NX leaves an
// existing TTL untouched, EXPIRE overwrites it when refreshTTL is set.
func (rs *RedisStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration, refreshTTL bool) (int64, error) {
	pipe := rs.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	if refreshTTL {
		pipe.Expire(ctx, key, ttl)
	} else {
		pipe.ExpireNX(ctx, key, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment key in Redis: %w", err)
	}

	return incr.Val(), nil
}

// Delete removes the key from Redis.
func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	if err := rs.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key from Redis: %w", err)
	}
	return nil
}

// Ping checks if Redis is available.
func (rs *RedisStore) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
