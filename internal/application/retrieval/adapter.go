package retrieval

import (
	"context"

	"hybrid-ranking-api/internal/domain/entity"
)

// Request 单次召回请求
type Request struct {
	Mode entity.Mode
	// Query 归一化并纠错后的查询，仅搜索模式
	Query string
	// Text 全文检索查询，带同义词展开；为空时由 Query 切分得到
	Text   entity.TextQuery
	UserID string
	// Profile 已解析的用户画像，匿名搜索时为空
	Profile *entity.User
	// HistoryVector 用户历史商品向量均值，推荐模式语义召回使用
	HistoryVector []float32
}

// Adapter 召回源
type Adapter interface {
	Source() entity.Source
	// Supports 该源是否作为此模式的候选来源
	Supports(mode entity.Mode) bool
	// Retrieve 返回 (候选 id, 源内分数)，分数已归一化到 [0,1]
	Retrieve(ctx context.Context, req Request, k int) ([]entity.ScoredID, error)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
