package retrieval

import (
	"context"
	"errors"

	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
)

// SemanticAdapter 向量近邻召回
//
// 搜索模式对查询做向量化，推荐模式使用用户历史商品向量均值。
type SemanticAdapter struct {
	index    repository.VectorIndex
	embedder repository.Embedder
}

// NewSemanticAdapter 创建语义召回源
func NewSemanticAdapter(index repository.VectorIndex, embedder repository.Embedder) *SemanticAdapter {
	return &SemanticAdapter{index: index, embedder: embedder}
}

func (a *SemanticAdapter) Source() entity.Source { return entity.SourceSemantic }

func (a *SemanticAdapter) Supports(mode entity.Mode) bool {
	return mode == entity.ModeSearch || mode == entity.ModeRecommend
}

func (a *SemanticAdapter) Retrieve(ctx context.Context, req Request, k int) ([]entity.ScoredID, error) {
	if a.index == nil {
		return nil, Unavailable(entity.SourceSemantic, ErrNotConfigured)
	}

	vector, err := a.queryVector(ctx, req)
	if err != nil {
		return nil, err
	}

	items, err := a.index.SearchSimilar(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Score = clamp01(items[i].Score)
	}
	return items, nil
}

func (a *SemanticAdapter) queryVector(ctx context.Context, req Request) ([]float32, error) {
	if req.Mode == entity.ModeRecommend {
		if len(req.HistoryVector) == 0 {
			return nil, Unavailable(entity.SourceSemantic, ErrNoSignal)
		}
		return req.HistoryVector, nil
	}

	if a.embedder == nil {
		return nil, Unavailable(entity.SourceSemantic, ErrNotConfigured)
	}
	if req.Query == "" {
		return nil, InvalidInput(entity.SourceSemantic, errors.New("empty query"))
	}
	vector, err := a.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, Unavailable(entity.SourceSemantic, errors.New("empty embedding"))
	}
	return vector, nil
}

// Centroid 计算向量均值，维度不一致的向量被忽略
func Centroid(vectors [][]float32) []float32 {
	var (
		sum []float64
		n   int
	)
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(v))
		}
		if len(v) != len(sum) {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]float32, len(sum))
	for i, x := range sum {
		out[i] = float32(x / float64(n))
	}
	return out
}
