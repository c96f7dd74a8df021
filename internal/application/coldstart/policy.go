// Package coldstart 提供冷启动混合策略
package coldstart

import (
	"math"

	"hybrid-ranking-api/internal/config"
)

// 内容分来源
const (
	ContentFromHistory    = "history"
	ContentFromPopularity = "popularity"
)

// Policy 冷启动策略
type Policy struct {
	// MinInteractions 低于该交互数视为冷启动用户
	MinInteractions int
	ColdCFWeight    float64
	WarmCFWeight    float64
	// NewProductViews 低于该浏览数视为新商品
	NewProductViews           int
	NewProductPopularityFloor float64
}

// DefaultPolicy 默认策略
func DefaultPolicy() Policy {
	return Policy{
		MinInteractions:           5,
		ColdCFWeight:              0.3,
		WarmCFWeight:              0.7,
		NewProductViews:           10,
		NewProductPopularityFloor: 0.1,
	}
}

// NewPolicy 从配置创建策略，未设置的字段使用默认值
func NewPolicy(cfg config.ColdStartConfig) Policy {
	p := DefaultPolicy()
	if cfg.MinInteractions > 0 {
		p.MinInteractions = cfg.MinInteractions
	}
	if cfg.ColdCFWeight > 0 {
		p.ColdCFWeight = cfg.ColdCFWeight
	}
	if cfg.WarmCFWeight > 0 {
		p.WarmCFWeight = cfg.WarmCFWeight
	}
	if cfg.NewProductViews > 0 {
		p.NewProductViews = cfg.NewProductViews
	}
	if cfg.NewProductPopularFloor > 0 {
		p.NewProductPopularityFloor = cfg.NewProductPopularFloor
	}
	return p
}

// Blend 单个请求的 CF 与内容权重
type Blend struct {
	CFWeight      float64
	ContentWeight float64
	ColdStart     bool
}

// Decide 按用户交互数决定混合权重
func (p Policy) Decide(interactionCount int) Blend {
	if interactionCount < p.MinInteractions {
		return Blend{CFWeight: p.ColdCFWeight, ContentWeight: 1 - p.ColdCFWeight, ColdStart: true}
	}
	return Blend{CFWeight: p.WarmCFWeight, ContentWeight: 1 - p.WarmCFWeight}
}

// Apply 计算混合分，CF 不可用时该项按 0 计
func (b Blend) Apply(cf float64, cfAvailable bool, content float64) float64 {
	if !cfAvailable {
		cf = 0
	}
	return b.CFWeight*cf + b.ContentWeight*content
}

// IsNewProduct 浏览数是否低于新商品阈值
func (p Policy) IsNewProduct(views int) bool {
	return views < p.NewProductViews
}

// PopularityFloor 新商品热度不低于下限
func (p Policy) PopularityFloor(popularity float64, views int) float64 {
	if p.IsNewProduct(views) && popularity < p.NewProductPopularityFloor {
		return p.NewProductPopularityFloor
	}
	return popularity
}

// ContentScore 候选与用户历史向量均值的相似度，无历史或无向量时回退到热度
func ContentScore(candidate, historyCentroid []float32, popularity float64) (float64, string) {
	if sim, ok := Cosine(candidate, historyCentroid); ok {
		return clamp01(sim), ContentFromHistory
	}
	return clamp01(popularity), ContentFromPopularity
}

// Cosine 余弦相似度，维度不一致或零向量返回 false
func Cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
