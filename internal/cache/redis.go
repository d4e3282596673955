package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/exhibitions/config"
	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisCache holds the public exhibition catalog. A miss is reported as (nil, nil).
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	return NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}), cfg.CacheTTL())
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) GetExhibitions(ctx context.Context) ([]domain.Exhibition, error) {
	var exhibitions []domain.Exhibition
	found, err := c.get(ctx, exhibitionsKey(), &exhibitions)
	if err != nil || !found {
		return nil, err
	}
	return exhibitions, nil
}

func (c *RedisCache) SetExhibitions(ctx context.Context, exhibitions []domain.Exhibition) error {
	return c.set(ctx, exhibitionsKey(), exhibitions)
}

func (c *RedisCache) GetExhibition(ctx context.Context, id int64) (*domain.Exhibition, error) {
	var e domain.Exhibition
	found, err := c.get(ctx, exhibitionKey(id), &e)
	if err != nil || !found {
		return nil, err
	}
	return &e, nil
}

func (c *RedisCache) SetExhibition(ctx context.Context, e *domain.Exhibition) error {
	return c.set(ctx, exhibitionKey(e.ID), e)
}

// InvalidateExhibition drops the exhibition and the catalog list.
func (c *RedisCache) InvalidateExhibition(ctx context.Context, id int64) error {
	return c.client.Del(ctx, exhibitionKey(id), exhibitionsKey()).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) set(ctx context.Context, key string, v any) error {
	if c.ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}

func exhibitionsKey() string {
	return "cache:exhibitions"
}

func exhibitionKey(id int64) string {
	return fmt.Sprintf("cache:exhibition:%d", id)
}
