package redis

import (
	"context"
	"fmt"
	"time"

	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
	"hybrid-ranking-api/pkg/logger"
)

const (
	popularKeyPrefix = "popular:"
	globalScope      = "global"

	// DefaultPopularTTL 热门榜单缓存时间
	DefaultPopularTTL = 5 * time.Minute
)

// PopularCache 热门榜单缓存，未命中时读取后备数据源
type PopularCache struct {
	cache  *Cache
	source repository.PopularSource
	ttl    time.Duration
}

var _ repository.PopularSource = (*PopularCache)(nil)

// NewPopularCache 创建热门榜单缓存
func NewPopularCache(cache *Cache, source repository.PopularSource, ttl time.Duration) *PopularCache {
	if ttl <= 0 {
		ttl = DefaultPopularTTL
	}
	return &PopularCache{cache: cache, source: source, ttl: ttl}
}

// PopularKey 构建热门榜单键
func PopularKey(category string, limit int) string {
	if category == "" {
		category = globalScope
	}
	return fmt.Sprintf("%s%s:%d", popularKeyPrefix, category, limit)
}

// TopPopular 读取缓存榜单，Redis 不可用时直接读取数据源
func (p *PopularCache) TopPopular(ctx context.Context, category string, limit int) ([]entity.ScoredID, error) {
	key := PopularKey(category, limit)
	items, err := loadJSON(ctx, p.cache, key, p.ttl, func(ctx context.Context) ([]entity.ScoredID, error) {
		items, err := p.source.TopPopular(ctx, category, limit)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []entity.ScoredID{}
		}
		return items, nil
	})
	if err != nil && IsReadError(err) {
		logger.Warn(ctx, "popular cache unavailable, reading source directly", "key", key, "error", err.Error())
		return p.source.TopPopular(ctx, category, limit)
	}
	return items, err
}
