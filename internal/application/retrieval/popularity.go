package retrieval

import (
	"context"

	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
)

// PopularityAdapter 热门召回，同时作为其余源全部失败时的兜底
type PopularityAdapter struct {
	source repository.PopularSource
}

// NewPopularityAdapter 创建热门召回源
func NewPopularityAdapter(source repository.PopularSource) *PopularityAdapter {
	return &PopularityAdapter{source: source}
}

func (a *PopularityAdapter) Source() entity.Source { return entity.SourcePopularity }

// Supports 搜索模式下热门只作为兜底，不参与常规召回
func (a *PopularityAdapter) Supports(mode entity.Mode) bool { return mode == entity.ModeRecommend }

// Retrieve 返回全局榜单，推荐模式额外合并用户最偏好类目的榜单
func (a *PopularityAdapter) Retrieve(ctx context.Context, req Request, k int) ([]entity.ScoredID, error) {
	if a.source == nil {
		return nil, Unavailable(entity.SourcePopularity, ErrNotConfigured)
	}

	global, globalErr := a.source.TopPopular(ctx, "", k)

	var category []entity.ScoredID
	if req.Mode == entity.ModeRecommend {
		if cats := req.Profile.TopCategories(1); len(cats) > 0 {
			items, err := a.source.TopPopular(ctx, cats[0], k)
			if err == nil {
				category = items
			} else if globalErr != nil {
				return nil, err
			}
		}
	}
	if globalErr != nil && category == nil {
		return nil, globalErr
	}

	merged := SortScored(append(global, category...))
	for i := range merged {
		merged[i].Score = clamp01(merged[i].Score)
	}
	if k > 0 && len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}
