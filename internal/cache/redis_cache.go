package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"storegoals/internal/domain"
)

type RedisGoalCache struct {
	client redis.UniversalClient
}

func NewRedisGoalCache(addr string, password string, db int) *RedisGoalCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisGoalCache{client: client}
}

// NewRedisGoalCacheFromClient wraps an existing client.
func NewRedisGoalCacheFromClient(client redis.UniversalClient) *RedisGoalCache {
	return &RedisGoalCache{client: client}
}

func (c *RedisGoalCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisGoalCache) Close() error {
	return c.client.Close()
}

func (c *RedisGoalCache) Get(ctx context.Context, key string) (*domain.MonthlyGoal, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var goal domain.MonthlyGoal
	if err := json.Unmarshal(val, &goal); err != nil {
		return nil, false, err
	}
	return &goal, true, nil
}

func (c *RedisGoalCache) Set(ctx context.Context, key string, value *domain.MonthlyGoal, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisGoalCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
