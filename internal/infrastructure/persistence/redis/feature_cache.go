package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
	"hybrid-ranking-api/pkg/logger"
)

// FeatureCache 基于 Redis 的特征快速缓存层
type FeatureCache struct {
	client *Client
}

var _ repository.FeatureCache = (*FeatureCache)(nil)

// NewFeatureCache 创建特征缓存
func NewFeatureCache(client *Client) *FeatureCache {
	return &FeatureCache{client: client}
}

// GetEntries 一次 MGET 读取全部 key
func (c *FeatureCache) GetEntries(ctx context.Context, keys []string) (map[string]entity.FeatureEntry, error) {
	out := make(map[string]entity.FeatureEntry, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	ctx, span := cacheTracer.Start(ctx, "feature_cache.GetEntries",
		trace.WithAttributes(attribute.Int("cache.key_count", len(keys))))
	defer span.End()

	values, err := c.client.MGet(ctx, keys...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("mget features: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var e entity.FeatureEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			// 损坏的条目按未命中处理，由后备存储重新写入
			logger.Warn(ctx, "discarding undecodable feature entry", "key", keys[i], "error", err)
			continue
		}
		out[keys[i]] = e
	}

	span.SetAttributes(attribute.Int("cache.hit_count", len(out)))
	return out, nil
}

// SetEntries 使用 pipeline 批量写入
func (c *FeatureCache) SetEntries(ctx context.Context, items []repository.FeatureCacheItem) error {
	if len(items) == 0 {
		return nil
	}

	ctx, span := cacheTracer.Start(ctx, "feature_cache.SetEntries",
		trace.WithAttributes(attribute.Int("cache.key_count", len(items))))
	defer span.End()

	pipe := c.client.rdb.Pipeline()
	for _, it := range items {
		bytes, err := json.Marshal(it.Entry)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("marshal feature entry %s: %w", it.Key, err)
		}
		pipe.Set(ctx, it.Key, bytes, it.TTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("write features: %w", err)
	}
	return nil
}
