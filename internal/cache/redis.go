package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/voxline/internal/services"
)

// RedisCache — кэш контента поверх Redis с TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache создаёт Redis-кэш.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

// Get возвращает результат обхода для URL.
func (c *RedisCache) Get(ctx context.Context, url string) (*services.CrawlResult, error) {
	data, err := c.client.Get(ctx, contentKey(url)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var result services.CrawlResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("cache unmarshal: %w", err)
	}
	return &result, nil
}

// Set сохраняет результат обхода с TTL.
func (c *RedisCache) Set(ctx context.Context, url string, result *services.CrawlResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}

	if err := c.client.Set(ctx, contentKey(url), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete убирает запись для URL.
func (c *RedisCache) Delete(ctx context.Context, url string) error {
	if err := c.client.Del(ctx, contentKey(url)).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// contentKey возвращает ключ Redis для URL сайта.
func contentKey(url string) string {
	return "voxline:content:" + url
}
