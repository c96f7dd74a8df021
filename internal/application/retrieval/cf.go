package retrieval

import (
	"context"
	"math"

	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
)

// CFAdapter 协同过滤召回
type CFAdapter struct {
	index repository.FactorIndex
}

// NewCFAdapter 创建协同过滤召回源
func NewCFAdapter(index repository.FactorIndex) *CFAdapter {
	return &CFAdapter{index: index}
}

func (a *CFAdapter) Source() entity.Source { return entity.SourceCF }

func (a *CFAdapter) Supports(mode entity.Mode) bool { return mode == entity.ModeRecommend }

// Retrieve 冷启动用户没有隐向量时返回 Unavailable，而不是 0 分
func (a *CFAdapter) Retrieve(ctx context.Context, req Request, k int) ([]entity.ScoredID, error) {
	if !req.Profile.HasFactor() {
		return nil, Unavailable(entity.SourceCF, ErrNoSignal)
	}
	if a.index == nil {
		return nil, Unavailable(entity.SourceCF, ErrNotConfigured)
	}

	items, err := a.index.SearchItems(ctx, req.Profile.Factor, k)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Score = sigmoid(items[i].Score)
	}
	return items, nil
}

// Affinity 用户与商品隐向量的亲和度 sigmoid(dot)，任一侧缺失时返回 false
func Affinity(userFactor, itemFactor []float32) (float64, bool) {
	if len(userFactor) == 0 || len(itemFactor) == 0 || len(userFactor) != len(itemFactor) {
		return 0, false
	}
	var dot float64
	for i := range userFactor {
		dot += float64(userFactor[i]) * float64(itemFactor[i])
	}
	return sigmoid(dot), true
}

// ScoreItems 为任意候选计算亲和度，冷启动商品不出现在结果中
func ScoreItems(userFactor []float32, itemFactors map[string][]float32) map[string]float64 {
	out := make(map[string]float64, len(itemFactors))
	if len(userFactor) == 0 {
		return out
	}
	for id, f := range itemFactors {
		if v, ok := Affinity(userFactor, f); ok {
			out[id] = v
		}
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
