package feature

import (
	"time"

	"hybrid-ranking-api/internal/domain/entity"
)

// 内置特征名
const (
	Popularity       = "popularity"
	ViewCount        = "view_count"
	CreatedAt        = "created_at"
	Freshness        = "freshness"
	Embedding        = "embedding"
	Category         = "category"
	CFItemFactor     = "cf_item_factor"
	CFUserFactor     = "cf_user_factor"
	Affinity         = "affinity"
	InteractionCount = "interaction_count"
	History          = "history"
)

// DefaultPopularity 未知商品的热度兜底
const DefaultPopularity = 0.1

// FreshnessFunc 新鲜度衰减函数
type FreshnessFunc func(createdAt, now time.Time) float64

func valuePtr(v entity.FeatureValue) *entity.FeatureValue {
	return &v
}

// BuiltinDefinitions 返回内置特征定义，versions 覆盖默认版本号
func BuiltinDefinitions(freshness FreshnessFunc, versions map[string]int) []Definition {
	defs := []Definition{
		{Name: Popularity, Entity: entity.EntityProduct, TTL: 5 * time.Minute, Default: valuePtr(entity.NumberValue(DefaultPopularity))},
		{Name: ViewCount, Entity: entity.EntityProduct, TTL: 5 * time.Minute, Default: valuePtr(entity.NumberValue(0))},
		{Name: CreatedAt, Entity: entity.EntityProduct, TTL: 24 * time.Hour},
		{
			Name:      Freshness,
			Entity:    entity.EntityProduct,
			TTL:       time.Hour,
			DependsOn: []string{CreatedAt},
			Derive: func(deps map[string]entity.FeatureValue, now time.Time) (entity.FeatureValue, bool) {
				created, ok := deps[CreatedAt]
				if !ok || created.Time == nil {
					return entity.FeatureValue{}, false
				}
				return entity.NumberValue(freshness(*created.Time, now)), true
			},
		},
		{Name: Embedding, Entity: entity.EntityProduct, TTL: 24 * time.Hour},
		{Name: Category, Entity: entity.EntityProduct, TTL: 24 * time.Hour},
		{Name: CFItemFactor, Entity: entity.EntityProduct, TTL: 24 * time.Hour},
		{Name: CFUserFactor, Entity: entity.EntityUser, TTL: 24 * time.Hour},
		{Name: Affinity, Entity: entity.EntityUser, TTL: 24 * time.Hour, Default: valuePtr(entity.MapValue(nil))},
		{Name: InteractionCount, Entity: entity.EntityUser, TTL: 5 * time.Minute, Default: valuePtr(entity.NumberValue(0))},
		{Name: History, Entity: entity.EntityUser, TTL: 5 * time.Minute, Default: valuePtr(entity.IDsValue(nil))},
	}

	for i := range defs {
		defs[i].Version = 1
		if v, ok := versions[defs[i].Name]; ok && v > 0 {
			defs[i].Version = v
		}
	}
	return defs
}

// NewBuiltinRegistry 创建内置特征注册表
func NewBuiltinRegistry(freshness FreshnessFunc, versions map[string]int) (*Registry, error) {
	return NewRegistry(BuiltinDefinitions(freshness, versions)...)
}
