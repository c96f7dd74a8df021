package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/interfaces/http/dto"
	apperrors "hybrid-ranking-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRanker struct {
	query  string
	userID string
	k      int
	result []entity.RankingBreakdown
	err    error
}

func (f *fakeRanker) Search(ctx context.Context, query, userID string, k int) ([]entity.RankingBreakdown, error) {
	f.query, f.userID, f.k = query, userID, k
	return f.result, f.err
}

func (f *fakeRanker) Recommend(ctx context.Context, userID string, k int) ([]entity.RankingBreakdown, error) {
	f.userID, f.k = userID, k
	return f.result, f.err
}

func newRankingEngine(r Ranker) *gin.Engine {
	h := NewRankingHandler(r, 0)
	e := gin.New()
	e.GET("/v1/search", h.Search)
	e.GET("/v1/recommend/:user_id", h.Recommend)
	return e
}

func do(t *testing.T, e *gin.Engine, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	e.ServeHTTP(w, req)
	return w
}

func sampleResults() []entity.RankingBreakdown {
	return []entity.RankingBreakdown{
		{
			ProductID:  "p1",
			FinalScore: 0.8,
			Components: entity.Components{
				Search:     entity.ComponentScore{Value: 1, Status: entity.ComponentOK},
				CF:         entity.ComponentScore{Status: entity.ComponentUnavailable},
				Popularity: entity.ComponentScore{Value: 0.5, Status: entity.ComponentOK},
				Freshness:  entity.ComponentScore{Value: 0.4, Status: entity.ComponentOK},
			},
			WeightsUsed: entity.DefaultWeights(),
			Sources:     []entity.Source{entity.SourceLexical, entity.SourceSemantic},
			Reason:      "strong text match",
		},
		{ProductID: "p2", FinalScore: 0.6, Sources: []entity.Source{entity.SourceLexical}},
	}
}

func TestSearch_ReturnsRankedResults(t *testing.T) {
	r := &fakeRanker{result: sampleResults()}
	w := do(t, newRankingEngine(r), "/v1/search?q=shoes&user_id=u1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "shoes", r.query)
	assert.Equal(t, "u1", r.userID)
	assert.Equal(t, DefaultK, r.k)

	var resp dto.Response[dto.RankedListResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "search", resp.Data.Mode)
	require.Len(t, resp.Data.Results, 2)
	first := resp.Data.Results[0]
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, "p1", first.ProductID)
	assert.Equal(t, "unavailable", first.Components.CF.Status)
	assert.Equal(t, []string{"lexical", "semantic"}, first.Sources)
	assert.Equal(t, 2, resp.Data.Results[1].Rank)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 2, resp.Meta.Count)
	assert.Equal(t, DefaultK, resp.Meta.K)
}

func TestSearch_PassesExplicitK(t *testing.T) {
	r := &fakeRanker{}
	w := do(t, newRankingEngine(r), "/v1/search?q=boots&k=25")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 25, r.k)
}

func TestSearch_BadRequests(t *testing.T) {
	e := newRankingEngine(&fakeRanker{})

	assert.Equal(t, http.StatusBadRequest, do(t, e, "/v1/search").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, e, "/v1/search?q=%20%20").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, e, "/v1/search?q=shoes&k=abc").Code)
}

func TestSearch_MapsAppErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperrors.ErrInvalidParam.WithDetail("k must not exceed 100"), http.StatusBadRequest, "1001"},
		{apperrors.ErrAllSourcesFailed, http.StatusServiceUnavailable, "4010"},
		{apperrors.New(apperrors.CodeSourceTimeout, "request deadline exceeded"), http.StatusGatewayTimeout, "4012"},
		{stderrors.New("boom"), http.StatusInternalServerError, "1000"},
	}
	for _, tc := range cases {
		w := do(t, newRankingEngine(&fakeRanker{err: tc.err}), "/v1/search?q=shoes")
		assert.Equal(t, tc.status, w.Code, tc.code)

		var resp dto.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, tc.code, resp.Error.ErrorCode)
	}
}

func TestRecommend(t *testing.T) {
	r := &fakeRanker{result: sampleResults()[:1]}
	w := do(t, newRankingEngine(r), "/v1/recommend/u42?k=5")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u42", r.userID)
	assert.Equal(t, 5, r.k)

	var resp dto.Response[dto.RankedListResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "recommend", resp.Data.Mode)
	assert.Equal(t, "u42", resp.Data.UserID)
	assert.Len(t, resp.Data.Results, 1)
}

func TestRecommend_EmptyResultIsNotAnError(t *testing.T) {
	w := do(t, newRankingEngine(&fakeRanker{}), "/v1/recommend/u1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response[dto.RankedListResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Data.Results)
	assert.Empty(t, resp.Data.Results)
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(ctx context.Context) error { return f.err }

type fakeBreakers map[string]string

func (f fakeBreakers) States() map[string]string { return f }

func ready(t *testing.T, deps HealthDeps) (int, readinessResponse) {
	t.Helper()
	e := gin.New()
	e.GET("/ready", NewHealthHandler(deps).Ready)
	w := do(t, e, "/ready")

	var resp readinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestReady_AllHealthy(t *testing.T) {
	code, resp := ready(t, HealthDeps{
		Postgres:    fakeChecker{},
		Redis:       fakeChecker{},
		Milvus:      fakeChecker{},
		Meilisearch: nil,
		Breakers:    fakeBreakers{"semantic": "closed", "lexical": "open"},
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Checks["milvus"].Status)
	assert.Equal(t, "disabled", resp.Checks["meilisearch"].Status)
	assert.Equal(t, "open", resp.Breakers["lexical"])
}

func TestReady_OptionalFailureDegrades(t *testing.T) {
	code, resp := ready(t, HealthDeps{
		Postgres: fakeChecker{},
		Redis:    fakeChecker{},
		Milvus:   fakeChecker{err: stderrors.New("milvus down")},
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "milvus down", resp.Checks["milvus"].Error)
}

func TestReady_RequiredFailureIsNotReady(t *testing.T) {
	code, resp := ready(t, HealthDeps{
		Postgres: fakeChecker{},
		Redis:    fakeChecker{err: stderrors.New("connection refused")},
	})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "error", resp.Checks["redis"].Status)

	code, resp = ready(t, HealthDeps{Redis: fakeChecker{}})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "missing", resp.Checks["postgres"].Status)
}

func TestHealthAndLive(t *testing.T) {
	h := NewHealthHandler(HealthDeps{Version: "1.2.3"})
	e := gin.New()
	e.GET("/health", h.Health)
	e.GET("/live", h.Live)

	w := do(t, e, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "1.2.3", resp.Version)

	assert.Equal(t, http.StatusOK, do(t, e, "/live").Code)
}
