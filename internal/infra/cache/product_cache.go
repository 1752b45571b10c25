// Package cache は商品詳細の cache-aside 用キャッシュ。
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storeapi/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 30 * time.Second

type RedisProductCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// DI
func NewRedisProductCache(client *redis.Client, prefix string, ttl time.Duration) *RedisProductCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisProductCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisProductCache) key(id int64) string {
	return fmt.Sprintf("%sproduct:%d", c.prefix, id)
}

// Get はヒットしたかどうかを返す。redis.Nil はミス扱い。
func (c *RedisProductCache) Get(ctx context.Context, id int64) (model.Product, bool, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Product{}, false, nil
	}
	if err != nil {
		return model.Product{}, false, fmt.Errorf("cache get: %w", err)
	}

	var p model.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Product{}, false, fmt.Errorf("cache unmarshal: %w", err)
	}
	return p, true, nil
}

func (c *RedisProductCache) Set(ctx context.Context, p model.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, c.key(p.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *RedisProductCache) Delete(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, c.key(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// REDIS_ADDR未設定のときに使う。
type NopProductCache struct{}

func (NopProductCache) Get(context.Context, int64) (model.Product, bool, error) {
	return model.Product{}, false, nil
}

func (NopProductCache) Set(context.Context, model.Product) error { return nil }

func (NopProductCache) Delete(context.Context, ...int64) error { return nil }
