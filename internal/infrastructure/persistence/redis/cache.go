package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var cacheTracer = otel.Tracer("redis.cache")

// Cache 读穿缓存，用于查询向量
type Cache struct {
	client *Client
	group  singleflight.Group
}

// NewCache 创建缓存服务
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// Get 获取缓存值
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.rdb.Get(ctx, c.client.Key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			return nil, err
		}
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return val, nil
}

// Set 以 JSON 写入缓存
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	bytes, err := json.Marshal(value)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.rdb.Set(ctx, c.client.Key(key), bytes, ttl).Err()
}

// GetOrLoadSafe 读穿缓存，singleflight 合并并发的相同加载
func (c *Cache) GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrLoadSafe",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	full := c.client.Key(key)
	val, err := c.client.rdb.Get(ctx, full).Bytes()
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return val, nil
	}
	if err != redis.Nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err, shared := c.group.Do(full, func() (interface{}, error) {
		if val, err := c.client.rdb.Get(ctx, full).Bytes(); err == nil {
			return val, nil
		}

		data, err := loader()
		if err != nil {
			return nil, err
		}
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal data: %w", err)
		}
		if err := c.client.rdb.Set(ctx, full, bytes, ttl).Err(); err != nil {
			// 写缓存失败不影响返回
			span.RecordError(err)
		}
		return bytes, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result.([]byte), nil
}

// Delete 删除缓存
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Delete",
		trace.WithAttributes(attribute.Int("cache.key_count", len(keys))))
	defer span.End()

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.client.Key(k)
	}
	return c.client.rdb.Del(ctx, full...).Err()
}
