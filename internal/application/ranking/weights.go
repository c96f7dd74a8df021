// Package ranking 提供确定性加权排序与检索推荐服务
package ranking

import (
	"fmt"
	"math"
	"time"

	"hybrid-ranking-api/internal/config"
	"hybrid-ranking-api/internal/domain/entity"
)

// DefaultFreshnessHalfLife 新鲜度半衰期默认值
const DefaultFreshnessHalfLife = 90 * 24 * time.Hour

// WeightsFromConfig 从配置读取排序权重
func WeightsFromConfig(cfg config.WeightsConfig) entity.Weights {
	return entity.Weights{
		Search:     cfg.Search,
		CF:         cfg.CF,
		Popularity: cfg.Popularity,
		Freshness:  cfg.Freshness,
	}
}

// ValidateWeights 权重非负且总和不超过 1，保证最终得分位于 [0,1]
func ValidateWeights(w entity.Weights) error {
	parts := map[string]float64{
		"search":     w.Search,
		"cf":         w.CF,
		"popularity": w.Popularity,
		"freshness":  w.Freshness,
	}
	for name, v := range parts {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
	}
	if sum := w.Search + w.CF + w.Popularity + w.Freshness; sum > 1+1e-9 {
		return fmt.Errorf("weights must sum to at most 1, got %.4f", sum)
	}
	return nil
}

// Freshness 指数衰减 exp(-ln2 * age / halfLife)，未来时间视为 1
func Freshness(createdAt, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		halfLife = DefaultFreshnessHalfLife
	}
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * float64(age) / float64(halfLife))
}

// FreshnessWithHalfLife 绑定半衰期的新鲜度函数
func FreshnessWithHalfLife(halfLife time.Duration) func(createdAt, now time.Time) float64 {
	return func(createdAt, now time.Time) float64 {
		return Freshness(createdAt, now, halfLife)
	}
}
