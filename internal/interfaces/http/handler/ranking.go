package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/interfaces/http/dto"
	"hybrid-ranking-api/pkg/logger"
)

// DefaultK 未指定 k 时返回的结果数
const DefaultK = 10

// Ranker 搜索与推荐排序服务
type Ranker interface {
	Search(ctx context.Context, query, userID string, k int) ([]entity.RankingBreakdown, error)
	Recommend(ctx context.Context, userID string, k int) ([]entity.RankingBreakdown, error)
}

// RankingHandler 搜索与推荐处理器
type RankingHandler struct {
	ranker   Ranker
	defaultK int
}

// NewRankingHandler 创建搜索与推荐处理器
func NewRankingHandler(ranker Ranker, defaultK int) *RankingHandler {
	if defaultK <= 0 {
		defaultK = DefaultK
	}
	return &RankingHandler{
		ranker:   ranker,
		defaultK: defaultK,
	}
}

// Search 混合检索排序
// @Summary 搜索商品
// @Description 融合全文与语义召回，返回带分项得分的排序结果
// @Tags Ranking
// @Produce json
// @Param q query string true "查询词"
// @Param user_id query string false "用户 ID"
// @Param k query int false "返回条数，默认 10，最大 100"
// @Success 200 {object} dto.Response[dto.RankedListResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/search [get]
func (h *RankingHandler) Search(c *gin.Context) {
	var req dto.SearchQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		dto.BadRequest(c, "query is empty")
		return
	}
	k := h.k(req.K)

	ctx := c.Request.Context()
	start := time.Now()
	results, err := h.ranker.Search(ctx, req.Query, req.UserID, k)
	if err != nil {
		logger.Warn(ctx, "search failed", "query", req.Query, "error", err.Error())
		dto.AppError(c, err)
		return
	}

	dto.SuccessWithMeta(c, dto.ToRankedListResponse(entity.ModeSearch, req.Query, req.UserID, results), &dto.ListMeta{
		Count:  len(results),
		K:      k,
		TookMs: time.Since(start).Milliseconds(),
	})
}

// Recommend 个性化推荐
// @Summary 推荐商品
// @Description 按用户历史、协同过滤与热度返回推荐结果
// @Tags Ranking
// @Produce json
// @Param user_id path string true "用户 ID"
// @Param k query int false "返回条数，默认 10，最大 100"
// @Success 200 {object} dto.Response[dto.RankedListResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/recommend/{user_id} [get]
func (h *RankingHandler) Recommend(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		dto.BadRequest(c, "user_id is required")
		return
	}
	var req dto.RecommendQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	k := h.k(req.K)

	ctx := c.Request.Context()
	start := time.Now()
	results, err := h.ranker.Recommend(ctx, userID, k)
	if err != nil {
		logger.Warn(ctx, "recommend failed", "user_id", userID, "error", err.Error())
		dto.AppError(c, err)
		return
	}

	dto.SuccessWithMeta(c, dto.ToRankedListResponse(entity.ModeRecommend, "", userID, results), &dto.ListMeta{
		Count:  len(results),
		K:      k,
		TookMs: time.Since(start).Milliseconds(),
	})
}

// k 为 0 时取默认值，其余交给服务校验
func (h *RankingHandler) k(k int) int {
	if k == 0 {
		return h.defaultK
	}
	return k
}
