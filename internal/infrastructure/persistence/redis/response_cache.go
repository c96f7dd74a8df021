package redis

import (
	"context"
	"fmt"
	"time"

	"hybrid-ranking-api/internal/domain/entity"
)

const responseKeyPrefix = "search:"

// ResponseCache 搜索结果缓存
type ResponseCache struct {
	cache *Cache
}

// NewResponseCache 创建搜索结果缓存
func NewResponseCache(cache *Cache) *ResponseCache {
	return &ResponseCache{cache: cache}
}

// Get 读取缓存结果，未命中返回 false
func (c *ResponseCache) Get(ctx context.Context, key string) ([]entity.RankingBreakdown, bool, error) {
	results, ok, err := getJSON[[]entity.RankingBreakdown](ctx, c.cache, key)
	if err != nil {
		return nil, false, fmt.Errorf("read response cache: %w", err)
	}
	return results, ok, nil
}

// Set 写入缓存结果
func (c *ResponseCache) Set(ctx context.Context, key string, results []entity.RankingBreakdown, ttl time.Duration) error {
	if results == nil {
		results = []entity.RankingBreakdown{}
	}
	return setJSON(ctx, c.cache, key, results, ttl)
}
