package repository

import (
	"context"
	"fmt"
	"time"

	"tallybook/internal/config"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLeaseRepository struct {
	client *redis.Client
}

// NewRedisClient builds a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisLeaseRepository(client *redis.Client) *RedisLeaseRepository {
	return &RedisLeaseRepository{client: client}
}

// Acquire takes key for owner unless another owner holds it. Re-acquiring an
// owned lease extends it.
func (r *RedisLeaseRepository) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	ok, err := r.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if ok {
		return true, nil
	}

	holder, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read lease holder: %w", err)
	}
	if holder != owner {
		return false, nil
	}

	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return false, fmt.Errorf("failed to extend lease: %w", err)
	}
	return true, nil
}

// Release drops key if owner still holds it.
func (r *RedisLeaseRepository) Release(ctx context.Context, key, owner string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := releaseScript.Run(ctx, r.client, []string{key}, owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
