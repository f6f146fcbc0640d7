// Package cache implements the listing/breadcrumb cache on Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const generationKeyPrefix = "cabinet:gen:"

type RedisCache struct {
	client *redis.Client
}

type RedisCacheDependencies struct {
	Address  string
	Password string
	DB       int
}

func NewRedisCache(deps RedisCacheDependencies) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     deps.Address,
		Password: deps.Password,
		DB:       deps.DB,
	})

	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	blob, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache key %q: %w", key, err)
	}

	return blob, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %q: %w", key, err)
	}

	return nil
}

// OwnerGeneration returns the owner's current cache generation. Owners
// that were never bumped are at generation zero.
func (c *RedisCache) OwnerGeneration(ctx context.Context, ownerID int64) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(ownerID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}

	return gen, nil
}

// BumpOwnerGeneration invalidates every cached listing and breadcrumb
// of the owner by making their keys unreachable; the stale entries age
// out by TTL.
func (c *RedisCache) BumpOwnerGeneration(ctx context.Context, ownerID int64) error {
	if err := c.client.Incr(ctx, generationKey(ownerID)).Err(); err != nil {
		return fmt.Errorf("failed to bump cache generation: %w", err)
	}

	return nil
}

// Ping verifies connectivity on startup.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func generationKey(ownerID int64) string {
	return fmt.Sprintf("%s%d", generationKeyPrefix, ownerID)
}
