package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"hybrid-ranking-api/pkg/logger"
)

var cacheTracer = otel.Tracer("redis.cache")

// scanBatch 模式失效时每批 SCAN/DEL 的键数
const scanBatch = 500

// readError Redis 读取失败，调用方据此降级到后备数据源
type readError struct {
	err error
}

func (e *readError) Error() string { return "cache read: " + e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

// IsReadError 判断错误是否来自缓存读取
func IsReadError(err error) bool {
	var re *readError
	return errors.As(err, &re)
}

// Cache JSON 值缓存，供热门榜单与结果缓存共用
type Cache struct {
	client *Client
	group  singleflight.Group
}

// NewCache 创建缓存服务
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// getJSON 读取并解码，未命中返回 false；损坏的值会被删除并按未命中处理
func getJSON[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	raw, err := c.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if IsNil(err) {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			return zero, false, nil
		}
		span.RecordError(err)
		return zero, false, &readError{err: err}
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		logger.Warn(ctx, "discarding undecodable cache value", "key", key, "error", err.Error())
		_ = c.client.rdb.Del(ctx, key).Err()
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return zero, false, nil
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	return v, true, nil
}

// setJSON 编码后写入
func setJSON(ctx context.Context, c *Cache, key string, value any, ttl time.Duration) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	bytes, err := json.Marshal(value)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshal cache value %s: %w", key, err)
	}
	if err := c.client.rdb.Set(ctx, key, bytes, ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// loadJSON 读缓存，未命中时由 singleflight 合并同 key 的并发加载并回写
func loadJSON[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if v, ok, err := getJSON[T](ctx, c, key); err != nil || ok {
		return v, err
	}

	result, err, shared := c.group.Do(key, func() (interface{}, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		// 回写失败不影响本次结果
		if err := setJSON(ctx, c, key, v, ttl); err != nil {
			logger.Warn(ctx, "cache write back failed", "key", key, "error", err.Error())
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("cache.shared", shared))
	return result.(T), nil
}

// Delete 删除缓存
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, span := cacheTracer.Start(ctx, "cache.Delete",
		trace.WithAttributes(attribute.Int("cache.key_count", len(keys))))
	defer span.End()

	return c.client.rdb.Del(ctx, keys...).Err()
}

// InvalidatePattern 按模式分批扫描删除
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) error {
	ctx, span := cacheTracer.Start(ctx, "cache.InvalidatePattern",
		trace.WithAttributes(attribute.String("cache.pattern", pattern)))
	defer span.End()

	iter := c.client.rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	total := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.client.rdb.Del(ctx, batch...).Err(); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				span.RecordError(err)
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return err
	}
	if err := flush(); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(attribute.Int("cache.invalidated_count", total))
	return nil
}

// InvalidatePopular 使全部热门榜单缓存失效
func (c *Cache) InvalidatePopular(ctx context.Context) error {
	return c.InvalidatePattern(ctx, popularKeyPrefix+"*")
}

// InvalidateResponses 使搜索结果缓存失效
func (c *Cache) InvalidateResponses(ctx context.Context) error {
	return c.InvalidatePattern(ctx, responseKeyPrefix+"*")
}
