// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"hybrid-ranking-api/internal/domain/entity"
)

// LexicalIndex 商品全文检索
type LexicalIndex interface {
	// SearchText 返回相关度降序的商品，分数位于 [0,1]
	SearchText(ctx context.Context, query entity.TextQuery, limit int) ([]entity.ScoredID, error)
}

// VectorIndex 商品向量近邻检索
type VectorIndex interface {
	// SearchSimilar 返回余弦相似度降序的商品，分数位于 [-1,1]
	SearchSimilar(ctx context.Context, vector []float32, limit int) ([]entity.ScoredID, error)
}

// FactorIndex CF 商品隐向量检索
type FactorIndex interface {
	// SearchItems 返回与用户隐向量内积最大的商品，分数为原始内积
	SearchItems(ctx context.Context, userFactor []float32, limit int) ([]entity.ScoredID, error)
}

// PopularSource 热门商品聚合
type PopularSource interface {
	// TopPopular category 为空表示全局榜单
	TopPopular(ctx context.Context, category string, limit int) ([]entity.ScoredID, error)
}

// FeatureStore 特征后备存储，一次调用批量加载同一特征
type FeatureStore interface {
	// LoadFeature 返回存在的实体特征值，缺失的实体不出现在结果中
	LoadFeature(ctx context.Context, feature string, entityIDs []string) (map[string]entity.FeatureValue, error)
}

// FeatureCacheItem 写入快速缓存层的特征条目
type FeatureCacheItem struct {
	Key   string
	Entry entity.FeatureEntry
	// TTL 物理过期时间
	TTL time.Duration
}

// FeatureCache 特征快速缓存层
type FeatureCache interface {
	// GetEntries 批量读取，未命中的 key 不出现在结果中
	GetEntries(ctx context.Context, keys []string) (map[string]entity.FeatureEntry, error)
	// SetEntries 批量写入，同一 key 后写覆盖
	SetEntries(ctx context.Context, items []FeatureCacheItem) error
}

// Embedder 查询向量化
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
