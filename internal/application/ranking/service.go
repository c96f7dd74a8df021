package ranking

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"hybrid-ranking-api/internal/application/coldstart"
	"hybrid-ranking-api/internal/application/feature"
	"hybrid-ranking-api/internal/application/retrieval"
	"hybrid-ranking-api/internal/config"
	"hybrid-ranking-api/internal/domain/entity"
	apperrors "hybrid-ranking-api/pkg/errors"
	"hybrid-ranking-api/pkg/logger"
	"hybrid-ranking-api/pkg/metrics"
)

// ResponseCache 搜索结果缓存
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]entity.RankingBreakdown, bool, error)
	Set(ctx context.Context, key string, results []entity.RankingBreakdown, ttl time.Duration) error
}

// Options 服务参数
type Options struct {
	MaxK             int
	CandidateFactor  int
	MaxCandidates    int
	RequestTimeout   time.Duration
	ResponseCacheTTL time.Duration
	HistoryLimit     int
	Weights          entity.Weights
	Policy           coldstart.Policy
	Abbreviations    map[string]string
	// Enhancer 查询增强器，为空时只做归一化与缩写展开
	Enhancer *retrieval.QueryEnhancer
}

// OptionsFromConfig 从配置构建服务参数
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxK:             cfg.Retrieval.MaxK,
		CandidateFactor:  cfg.Retrieval.CandidateFactor,
		MaxCandidates:    cfg.Ranking.MaxCandidates,
		RequestTimeout:   cfg.Retrieval.RequestTimeout,
		ResponseCacheTTL: cfg.Retrieval.ResponseCacheTTL,
		HistoryLimit:     cfg.Features.HistoryLimit,
		Weights:          WeightsFromConfig(cfg.Ranking.Weights),
		Policy:           coldstart.NewPolicy(cfg.ColdStart),
		Abbreviations:    cfg.Retrieval.Abbreviations,
	}
}

// Service 检索与推荐服务
type Service struct {
	fanout     *retrieval.FanOut
	resolver   *feature.Resolver
	cache      ResponseCache
	enhancer   *retrieval.QueryEnhancer
	engine     *Engine
	opts       Options
}

// NewService 创建检索与推荐服务，cache 可为空
func NewService(fanout *retrieval.FanOut, resolver *feature.Resolver, cache ResponseCache, opts Options) (*Service, error) {
	if err := ValidateWeights(opts.Weights); err != nil {
		return nil, err
	}
	if opts.MaxK <= 0 {
		opts.MaxK = 100
	}
	if opts.CandidateFactor <= 0 {
		opts.CandidateFactor = 5
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = retrieval.DefaultMaxCandidates
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.Policy == (coldstart.Policy{}) {
		opts.Policy = coldstart.DefaultPolicy()
	}

	enhancer := opts.Enhancer
	if enhancer == nil {
		enhancer = retrieval.NewQueryEnhancer(retrieval.NewQueryNormalizer(opts.Abbreviations), nil, nil)
	}

	return &Service{
		fanout:     fanout,
		resolver:   resolver,
		cache:      cache,
		enhancer:   enhancer,
		engine:     NewEngine(),
		opts:       opts,
	}, nil
}

// Search 搜索模式排序
func (s *Service) Search(ctx context.Context, query, userID string, k int) ([]entity.RankingBreakdown, error) {
	eq := s.enhancer.Enhance(query)
	if eq.Query == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("query is empty")
	}
	if err := s.validateK(k); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)

	if eq.Spell.Applied || eq.Text.Expanded() {
		logger.Debug(ctx, "query enhanced",
			"normalized", eq.Normalized,
			"corrected", eq.Query,
			"spell_confidence", eq.Spell.Confidence,
			"expression", eq.Text.Expression(),
		)
	}

	key := responseKey(eq.Query, userID, k)
	if cached, ok := s.cachedResponse(ctx, key); ok {
		return cached, nil
	}

	results, err := s.run(ctx, entity.ModeSearch, &eq, userID, k)
	if err != nil {
		return nil, err
	}

	s.storeResponse(ctx, key, results)
	return results, nil
}

// Recommend 推荐模式排序
func (s *Service) Recommend(ctx context.Context, userID string, k int) ([]entity.RankingBreakdown, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("user_id is required")
	}
	if err := s.validateK(k); err != nil {
		return nil, err
	}
	return s.run(ctx, entity.ModeRecommend, nil, userID, k)
}

func (s *Service) validateK(k int) error {
	if k <= 0 {
		return apperrors.ErrInvalidParam.WithDetail("k must be positive")
	}
	if k > s.opts.MaxK {
		return apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("k must not exceed %d", s.opts.MaxK))
	}
	return nil
}

func (s *Service) run(ctx context.Context, mode entity.Mode, eq *retrieval.EnhancedQuery, userID string, k int) (results []entity.RankingBreakdown, err error) {
	start := time.Now()
	ctx = logger.WithContext(ctx, logger.ModeKey, string(mode))
	if userID != "" {
		ctx = logger.WithContext(ctx, logger.UserIDKey, userID)
	}
	defer func() {
		status := "ok"
		if err != nil {
			status = string(apperrors.AsAppError(err).Code)
		}
		metrics.RankingDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
		metrics.RankingRequestsTotal.WithLabelValues(string(mode), status).Inc()
	}()

	reqCtx := ctx
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	profile := s.resolveProfile(reqCtx, userID)
	centroid := s.historyCentroid(reqCtx, profile)

	req := retrieval.Request{
		Mode:          mode,
		UserID:        userID,
		Profile:       profile,
		HistoryVector: centroid,
	}
	if eq != nil {
		req.Query = eq.Query
		req.Text = eq.Text
	}
	res := s.fanout.Run(reqCtx, req, s.candidateLimit(k))

	if cerr := ctx.Err(); cerr != nil {
		return nil, canceled(cerr)
	}
	if res.AllFailed() {
		logger.Warn(ctx, "all candidate sources failed", "query", req.Query)
		return nil, apperrors.ErrAllSourcesFailed
	}

	lists := res.Lists
	if mode == entity.ModeRecommend && profile != nil && len(profile.History) > 0 {
		lists = excludeSeen(lists, profile.History)
	}
	candidates := retrieval.Merge(mode, lists, s.opts.MaxCandidates)
	metrics.CandidatesPerRequest.WithLabelValues(string(mode)).Observe(float64(len(candidates)))
	if len(candidates) == 0 {
		return []entity.RankingBreakdown{}, nil
	}

	inputs, err := s.buildInputs(reqCtx, mode, candidates, profile, centroid, searchDown(res))
	if err != nil {
		return nil, err
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, canceled(cerr)
	}

	ranked := s.engine.Rank(inputs, s.opts.Weights)
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	logger.Debug(ctx, "ranking completed",
		"candidates", len(candidates),
		"returned", len(ranked),
		"fallback", res.FallbackUsed(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ranked, nil
}

func (s *Service) candidateLimit(k int) int {
	limit := k * s.opts.CandidateFactor
	if limit < k {
		limit = k
	}
	if limit > s.opts.MaxCandidates {
		limit = s.opts.MaxCandidates
	}
	return limit
}

// resolveProfile 解析用户画像，失败时按匿名处理
func (s *Service) resolveProfile(ctx context.Context, userID string) *entity.User {
	if userID == "" {
		return nil
	}
	profile, err := s.resolver.ResolveUser(ctx, userID)
	if err != nil {
		logger.Warn(ctx, "resolve user profile failed", "error", err.Error())
		return &entity.User{ID: userID}
	}
	return profile
}

// historyCentroid 用户历史商品向量均值
func (s *Service) historyCentroid(ctx context.Context, profile *entity.User) []float32 {
	if profile == nil || len(profile.History) == 0 {
		return nil
	}
	ids := profile.History
	if len(ids) > s.opts.HistoryLimit {
		ids = ids[:s.opts.HistoryLimit]
	}

	values, err := s.resolver.BatchResolve(ctx, ids, []string{feature.Embedding})
	if err != nil {
		logger.Warn(ctx, "resolve history embeddings failed", "error", err.Error())
		return nil
	}
	vectors := make([][]float32, 0, len(ids))
	for _, id := range ids {
		if v, ok := values[id][feature.Embedding]; ok {
			vectors = append(vectors, v.Vector)
		}
	}
	return retrieval.Centroid(vectors)
}

func (s *Service) buildInputs(ctx context.Context, mode entity.Mode, candidates []*entity.Candidate, profile *entity.User, centroid []float32, searchUnavailable bool) ([]Input, error) {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ProductID
	}

	names := []string{feature.Popularity, feature.ViewCount, feature.Freshness}
	if profile.HasFactor() {
		names = append(names, feature.CFItemFactor)
	}
	if len(centroid) > 0 {
		names = append(names, feature.Embedding)
	}

	values, err := s.resolver.BatchResolve(ctx, ids, names)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFeatureResolve, "resolve candidate features failed")
	}

	var blend coldstart.Blend
	if profile != nil {
		blend = s.opts.Policy.Decide(profile.InteractionCount)
	}

	inputs := make([]Input, 0, len(candidates))
	for _, c := range candidates {
		vals := values[c.ProductID]
		in := Input{Candidate: c}

		switch {
		case mode != entity.ModeSearch:
			in.Search = NotApplicable()
		case searchUnavailable && !c.HasSearchSignal():
			in.Search = Unavailable()
		default:
			in.Search = OK(c.SearchScore)
		}

		popularity, hasPopularity := vals[feature.Popularity]
		if hasPopularity {
			views := int(vals[feature.ViewCount].Number)
			in.Popularity = OK(s.opts.Policy.PopularityFloor(popularity.Number, views))
		} else {
			in.Popularity = Unavailable()
		}

		if f, ok := vals[feature.Freshness]; ok {
			in.Freshness = OK(f.Number)
		} else {
			in.Freshness = Unavailable()
		}

		if profile == nil {
			in.CF = Unavailable()
			inputs = append(inputs, in)
			continue
		}

		cfRaw := cfScore(c, profile, vals)
		content, contentSource := coldstart.ContentScore(vals[feature.Embedding].Vector, centroid, in.Popularity.Value)
		blended := blend.Apply(cfRaw.Value, cfRaw.Available(), content)

		// CF 不可用时 blended 只写入 Personalization 用于解释，不计入最终分
		if cfRaw.Available() {
			in.CF = OK(blended)
		} else {
			in.CF = Unavailable()
		}
		in.Personalization = &entity.Personalization{
			InteractionCount: profile.InteractionCount,
			ColdStart:        blend.ColdStart,
			CFWeight:         blend.CFWeight,
			ContentWeight:    blend.ContentWeight,
			CFRaw:            cfRaw,
			Content:          content,
			ContentSource:    contentSource,
			Blended:          blended,
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// searchDown 搜索模式下 lexical 与 semantic 均未成功返回
func searchDown(res *retrieval.Result) bool {
	for _, o := range res.Outcomes {
		if (o.Source == entity.SourceLexical || o.Source == entity.SourceSemantic) && o.OK() {
			return false
		}
	}
	return true
}

// cfScore 用户与候选的亲和度，任一侧没有隐向量时不可用
func cfScore(c *entity.Candidate, profile *entity.User, vals feature.Values) entity.ComponentScore {
	if !profile.HasFactor() {
		return Unavailable()
	}
	if item, ok := vals[feature.CFItemFactor]; ok {
		if v, ok := retrieval.Affinity(profile.Factor, item.Vector); ok {
			return OK(v)
		}
	}
	if v, ok := c.Score(entity.SourceCF); ok {
		return OK(v)
	}
	return Unavailable()
}

func excludeSeen(lists map[entity.Source][]entity.ScoredID, history []string) map[entity.Source][]entity.ScoredID {
	seen := make(map[string]struct{}, len(history))
	for _, id := range history {
		seen[id] = struct{}{}
	}
	out := make(map[entity.Source][]entity.ScoredID, len(lists))
	for src, items := range lists {
		kept := make([]entity.ScoredID, 0, len(items))
		for _, it := range items {
			if _, ok := seen[it.ID]; !ok {
				kept = append(kept, it)
			}
		}
		out[src] = kept
	}
	return out
}

func (s *Service) cachedResponse(ctx context.Context, key string) ([]entity.RankingBreakdown, bool) {
	if s.cache == nil || s.opts.ResponseCacheTTL <= 0 {
		return nil, false
	}
	results, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Warn(ctx, "response cache read failed", "error", err.Error())
		return nil, false
	}
	return results, ok
}

func (s *Service) storeResponse(ctx context.Context, key string, results []entity.RankingBreakdown) {
	if s.cache == nil || s.opts.ResponseCacheTTL <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, results, s.opts.ResponseCacheTTL); err != nil {
		logger.Warn(ctx, "response cache write failed", "error", err.Error())
	}
}

// responseKey 搜索结果缓存 key
func responseKey(query, userID string, k int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%s|%d", query, userID, k)))
	return "search:" + hex.EncodeToString(sum[:])
}

func canceled(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.CodeSourceTimeout, "request deadline exceeded")
	}
	return apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "request canceled")
}
