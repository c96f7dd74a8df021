package dto

import (
	"hybrid-ranking-api/internal/domain/entity"
)

// SearchQuery 搜索请求参数
type SearchQuery struct {
	Query  string `form:"q" binding:"required,max=512"`
	UserID string `form:"user_id" binding:"max=128"`
	K      int    `form:"k"`
}

// RecommendQuery 推荐请求参数
type RecommendQuery struct {
	K int `form:"k"`
}

// ComponentResponse 单个分项
type ComponentResponse struct {
	Value  float64 `json:"value"`
	Status string  `json:"status"`
}

// ComponentsResponse 分项得分
type ComponentsResponse struct {
	Search     ComponentResponse `json:"search"`
	CF         ComponentResponse `json:"cf"`
	Popularity ComponentResponse `json:"popularity"`
	Freshness  ComponentResponse `json:"freshness"`
}

// PersonalizationResponse 冷启动混合明细
type PersonalizationResponse struct {
	InteractionCount int               `json:"interaction_count"`
	ColdStart        bool              `json:"cold_start"`
	CFWeight         float64           `json:"cf_weight"`
	ContentWeight    float64           `json:"content_weight"`
	CFRaw            ComponentResponse `json:"cf_raw"`
	Content          float64           `json:"content"`
	ContentSource    string            `json:"content_source"`
	Blended          float64           `json:"blended"`
}

// RankedItemResponse 排序结果项
type RankedItemResponse struct {
	Rank            int                      `json:"rank"`
	ProductID       string                   `json:"product_id"`
	FinalScore      float64                  `json:"final_score"`
	Components      ComponentsResponse       `json:"components"`
	WeightsUsed     entity.Weights           `json:"weights_used"`
	Sources         []string                 `json:"sources"`
	Personalization *PersonalizationResponse `json:"personalization,omitempty"`
	Reason          string                   `json:"reason,omitempty"`
}

// RankedListResponse 排序结果列表
type RankedListResponse struct {
	Mode    string                `json:"mode"`
	Query   string                `json:"query,omitempty"`
	UserID  string                `json:"user_id,omitempty"`
	Results []*RankedItemResponse `json:"results"`
}

func toComponent(c entity.ComponentScore) ComponentResponse {
	return ComponentResponse{Value: c.Value, Status: string(c.Status)}
}

// ToRankedItemResponse 转换单个结果，rank 从 1 开始
func ToRankedItemResponse(rank int, bd entity.RankingBreakdown) *RankedItemResponse {
	sources := make([]string, 0, len(bd.Sources))
	for _, s := range bd.Sources {
		sources = append(sources, string(s))
	}

	item := &RankedItemResponse{
		Rank:       rank,
		ProductID:  bd.ProductID,
		FinalScore: bd.FinalScore,
		Components: ComponentsResponse{
			Search:     toComponent(bd.Components.Search),
			CF:         toComponent(bd.Components.CF),
			Popularity: toComponent(bd.Components.Popularity),
			Freshness:  toComponent(bd.Components.Freshness),
		},
		WeightsUsed: bd.WeightsUsed,
		Sources:     sources,
		Reason:      bd.Reason,
	}
	if p := bd.Personalization; p != nil {
		item.Personalization = &PersonalizationResponse{
			InteractionCount: p.InteractionCount,
			ColdStart:        p.ColdStart,
			CFWeight:         p.CFWeight,
			ContentWeight:    p.ContentWeight,
			CFRaw:            toComponent(p.CFRaw),
			Content:          p.Content,
			ContentSource:    p.ContentSource,
			Blended:          p.Blended,
		}
	}
	return item
}

// ToRankedListResponse 转换排序结果列表
func ToRankedListResponse(mode entity.Mode, query, userID string, results []entity.RankingBreakdown) *RankedListResponse {
	items := make([]*RankedItemResponse, 0, len(results))
	for i, bd := range results {
		items = append(items, ToRankedItemResponse(i+1, bd))
	}
	return &RankedListResponse{
		Mode:    string(mode),
		Query:   query,
		UserID:  userID,
		Results: items,
	}
}
