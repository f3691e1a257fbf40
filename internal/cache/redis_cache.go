package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"retailpos/backend/internal/domain"
)

type RedisIdempotencyCache struct {
	client *redis.Client
}

func NewRedisIdempotencyCache(addr string, password string, db int) *RedisIdempotencyCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisIdempotencyCache{client: client}
}

func (c *RedisIdempotencyCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisIdempotencyCache) Close() error {
	return c.client.Close()
}

func (c *RedisIdempotencyCache) Get(ctx context.Context, scope string, key string) (*domain.IdempotencyRecord, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(scope, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rec domain.IdempotencyRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

// Set stores only completed records. SETNX keeps the first writer's value,
// which is identical for every writer of a completed key.
func (c *RedisIdempotencyCache) Set(ctx context.Context, rec domain.IdempotencyRecord, ttl time.Duration) error {
	if len(rec.Response) == 0 {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.SetNX(ctx, cacheKey(rec.Scope, rec.Key), payload, ttl).Err()
}
