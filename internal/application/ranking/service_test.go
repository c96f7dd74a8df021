package ranking

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybrid-ranking-api/internal/application/feature"
	"hybrid-ranking-api/internal/application/retrieval"
	"hybrid-ranking-api/internal/config"
	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
	"hybrid-ranking-api/internal/infrastructure/breaker"
	apperrors "hybrid-ranking-api/pkg/errors"
)

type fakeLexical struct {
	items []entity.ScoredID
	err   error
	calls atomic.Int32

	mu   sync.Mutex
	last entity.TextQuery
}

func (f *fakeLexical) SearchText(ctx context.Context, query entity.TextQuery, limit int) ([]entity.ScoredID, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = query
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]entity.ScoredID(nil), f.items...), nil
}

type fakePopular struct {
	items []entity.ScoredID
	err   error
	calls atomic.Int32
}

func (f *fakePopular) TopPopular(ctx context.Context, category string, limit int) ([]entity.ScoredID, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return append([]entity.ScoredID(nil), f.items...), nil
}

type fakeStore struct {
	mu   sync.Mutex
	data map[string]map[string]entity.FeatureValue
}

func (s *fakeStore) put(name, id string, v entity.FeatureValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]map[string]entity.FeatureValue)
	}
	if s.data[name] == nil {
		s.data[name] = make(map[string]entity.FeatureValue)
	}
	s.data[name][id] = v
}

func (s *fakeStore) LoadFeature(ctx context.Context, name string, ids []string) (map[string]entity.FeatureValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]entity.FeatureValue)
	for _, id := range ids {
		if v, ok := s.data[name][id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]entity.FeatureEntry
}

func (c *memoryCache) GetEntries(ctx context.Context, keys []string) (map[string]entity.FeatureEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]entity.FeatureEntry)
	for _, k := range keys {
		if e, ok := c.entries[k]; ok {
			out[k] = e
		}
	}
	return out, nil
}

func (c *memoryCache) SetEntries(ctx context.Context, items []repository.FeatureCacheItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]entity.FeatureEntry)
	}
	for _, it := range items {
		c.entries[it.Key] = it.Entry
	}
	return nil
}

type memoryResponses struct {
	mu   sync.Mutex
	data map[string][]entity.RankingBreakdown
}

func (m *memoryResponses) Get(ctx context.Context, key string) ([]entity.RankingBreakdown, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryResponses) Set(ctx context.Context, key string, results []entity.RankingBreakdown, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]entity.RankingBreakdown)
	}
	m.data[key] = results
	return nil
}

type fixture struct {
	svc     *Service
	lexical *fakeLexical
	popular *fakePopular
	store   *fakeStore
}

// createdAtFor 返回使新鲜度等于 f 的创建时间
func createdAtFor(f float64) entity.FeatureValue {
	age := time.Duration(float64(DefaultFreshnessHalfLife) * math.Log2(1/f))
	return entity.TimeValue(time.Now().Add(-age))
}

func newFixture(t *testing.T, responses ResponseCache, ttl time.Duration) *fixture {
	t.Helper()
	return newFixtureWith(t, responses, ttl, nil)
}

func newFixtureWith(t *testing.T, responses ResponseCache, ttl time.Duration, enhancer *retrieval.QueryEnhancer) *fixture {
	t.Helper()

	fx := &fixture{
		lexical: &fakeLexical{},
		popular: &fakePopular{},
		store:   &fakeStore{},
	}

	reg, err := feature.NewBuiltinRegistry(FreshnessWithHalfLife(DefaultFreshnessHalfLife), nil)
	require.NoError(t, err)
	resolver := feature.NewResolver(reg, &memoryCache{}, fx.store, nil, config.FeaturesConfig{
		CacheTimeout: 50 * time.Millisecond,
		StoreTimeout: 100 * time.Millisecond,
		StaleGrace:   time.Hour,
	})

	breakers := breaker.NewRegistry(config.BreakerConfig{
		Window:         time.Minute,
		Cooldown:       30 * time.Second,
		FailureRatio:   0.5,
		MinRequests:    10,
		HalfOpenRatio:  0.1,
		HalfOpenTrials: 1,
	})
	popularity := retrieval.NewPopularityAdapter(fx.popular)
	fanout := retrieval.NewFanOut([]retrieval.Adapter{
		retrieval.NewLexicalAdapter(fx.lexical),
		retrieval.NewSemanticAdapter(nil, nil),
		retrieval.NewCFAdapter(nil),
		popularity,
	}, popularity, breakers, map[entity.Source]time.Duration{
		entity.SourceLexical:    100 * time.Millisecond,
		entity.SourceSemantic:   150 * time.Millisecond,
		entity.SourceCF:         100 * time.Millisecond,
		entity.SourcePopularity: 50 * time.Millisecond,
	})

	svc, err := NewService(fanout, resolver, responses, Options{
		MaxK:             100,
		CandidateFactor:  5,
		MaxCandidates:    200,
		RequestTimeout:   400 * time.Millisecond,
		ResponseCacheTTL: ttl,
		Weights:          entity.DefaultWeights(),
		Enhancer:         enhancer,
	})
	require.NoError(t, err)
	fx.svc = svc
	return fx
}

func (fx *fixture) seedShoes() {
	fx.store.put(feature.Popularity, "p1", entity.NumberValue(0.9))
	fx.store.put(feature.CreatedAt, "p1", createdAtFor(0.8))
	fx.store.put(feature.Popularity, "p2", entity.NumberValue(0.1))
	fx.store.put(feature.CreatedAt, "p2", createdAtFor(0.9))
	fx.lexical.items = []entity.ScoredID{{ID: "p1", Score: 0.9}, {ID: "p2", Score: 0.5}}
}

func ids(results []entity.RankingBreakdown) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ProductID
	}
	return out
}

func TestSearch_ShoesScenario(t *testing.T) {
	fx := newFixture(t, nil, 0)
	fx.seedShoes()

	got, err := fx.svc.Search(context.Background(), "shoes", "", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, ids(got))

	p1 := got[0]
	assert.Equal(t, entity.ComponentOK, p1.Components.Search.Status)
	assert.InDelta(t, 0.9, p1.Components.Search.Value, 1e-9)
	assert.InDelta(t, 0.9, p1.Components.Popularity.Value, 1e-9)
	assert.InDelta(t, 0.8, p1.Components.Freshness.Value, 1e-3)
	assert.Equal(t, entity.ComponentUnavailable, p1.Components.CF.Status)
	assert.InDelta(t, 0.4*0.9+0.2*0.9+0.1*0.8, p1.FinalScore, 1e-3)
	assert.Equal(t, []entity.Source{entity.SourceLexical}, p1.Sources)
	assert.Nil(t, p1.Personalization)

	assert.Equal(t, int32(0), fx.popular.calls.Load(), "popularity is not queried while search sources answer")
}

func TestSearch_CorrectsAndExpandsLexicalQuery(t *testing.T) {
	enhancer := retrieval.NewQueryEnhancer(
		retrieval.NewQueryNormalizer(nil),
		retrieval.NewSpellCorrector([]string{"Trail sneakers"}, 2, 0.8),
		retrieval.NewSynonymExpander(map[string][]string{"sneakers": {"trainers"}}, 5, 0.8),
	)
	responses := &memoryResponses{}
	fx := newFixtureWith(t, responses, time.Minute, enhancer)
	fx.seedShoes()

	_, err := fx.svc.Search(context.Background(), "Sneakrs", "", 10)
	require.NoError(t, err)

	fx.lexical.mu.Lock()
	last := fx.lexical.last
	fx.lexical.mu.Unlock()
	assert.Equal(t, "sneakers", last.String())
	assert.Equal(t, "(sneakers OR trainers)", last.Expression())
	assert.InDelta(t, 0.8, last.Boost(), 1e-9)

	_, err = fx.svc.Search(context.Background(), "sneakers", "", 10)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fx.lexical.calls.Load(), "the corrected query shares the cached response")
}

func TestSearch_Deterministic(t *testing.T) {
	fx := newFixture(t, nil, 0)
	fx.seedShoes()

	first, err := fx.svc.Search(context.Background(), "shoes", "u1", 10)
	require.NoError(t, err)
	second, err := fx.svc.Search(context.Background(), "shoes", "u1", 10)
	require.NoError(t, err)

	assert.Equal(t, ids(first), ids(second))
	for i := range first {
		assert.InDelta(t, first[i].FinalScore, second[i].FinalScore, 1e-6)
	}
}

func TestSearch_ColdUserCFUnavailable(t *testing.T) {
	fx := newFixture(t, nil, 0)
	fx.seedShoes()

	got, err := fx.svc.Search(context.Background(), "shoes", "new-user", 10)
	require.NoError(t, err)
	require.NotEmpty(t, got)

	for _, bd := range got {
		assert.Equal(t, entity.ComponentUnavailable, bd.Components.CF.Status)
		assert.Equal(t, 0.0, bd.Components.CF.Value)
		require.NotNil(t, bd.Personalization)
		assert.True(t, bd.Personalization.ColdStart)
		assert.Equal(t, entity.ComponentUnavailable, bd.Personalization.CFRaw.Status)
	}
}

func TestSearch_WarmUserGetsBlendedCF(t *testing.T) {
	fx := newFixture(t, nil, 0)
	fx.seedShoes()
	fx.store.put(feature.InteractionCount, "u1", entity.NumberValue(12))
	fx.store.put(feature.CFUserFactor, "u1", entity.VectorValue([]float32{1, 0}))
	fx.store.put(feature.CFItemFactor, "p2", entity.VectorValue([]float32{2, 0}))

	got, err := fx.svc.Search(context.Background(), "shoes", "u1", 10)
	require.NoError(t, err)

	byID := map[string]entity.RankingBreakdown{}
	for _, bd := range got {
		byID[bd.ProductID] = bd
	}

	p2 := byID["p2"]
	require.NotNil(t, p2.Personalization)
	assert.False(t, p2.Personalization.ColdStart)
	assert.Equal(t, entity.ComponentOK, p2.Components.CF.Status)
	wantCF := 1 / (1 + math.Exp(-2.0))
	assert.InDelta(t, wantCF, p2.Personalization.CFRaw.Value, 1e-9)
	assert.InDelta(t, 0.7*wantCF+0.3*p2.Personalization.Content, p2.Components.CF.Value, 1e-9)

	assert.Equal(t, entity.ComponentUnavailable, byID["p1"].Components.CF.Status, "cold item stays unavailable")
}

func TestRecommend_NewUserUsesColdBlend(t *testing.T) {
	fx := newFixture(t, nil, 0)
	fx.popular.items = []entity.ScoredID{{ID: "p1", Score: 0.9}, {ID: "p2", Score: 0.5}, {ID: "p3", Score: 0.2}}
	fx.store.put(feature.Popularity, "p1", entity.NumberValue(0.9))
	fx.store.put(feature.Popularity, "p2", entity.NumberValue(0.5))
	fx.store.put(feature.Popularity, "p3", entity.NumberValue(0.2))
	fx.store.put(feature.ViewCount, "p1", entity.NumberValue(100))
	fx.store.put(feature.ViewCount, "p2", entity.NumberValue(100))
	fx.store.put(feature.ViewCount, "p3", entity.NumberValue(100))

	got, err := fx.svc.Recommend(context.Background(), "brand-new", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2", "p3"}, ids(got))

	for _, bd := range got {
		assert.Equal(t, entity.ComponentNotApplicable, bd.Components.Search.Status)
		assert.Equal(t, entity.ComponentUnavailable, bd.Components.CF.Status)
		assert.Zero(t, bd.Components.CF.Value)
		p := bd.Personalization
		require.NotNil(t, p)
		assert.Equal(t, 0, p.InteractionCount)
		assert.True(t, p.ColdStart)
		assert.InDelta(t, 0.3, p.CFWeight, 1e-9)
		assert.InDelta(t, 0.7, p.ContentWeight, 1e-9)
		assert.Equal(t, "popularity", p.ContentSource)
		assert.InDelta(t, 0.7*bd.Components.Popularity.Value, p.Blended, 1e-9)
	}
}

func TestRecommend_ExcludesHistory(t *testing.T) {
	fx := newFixture(t, nil, 0)
	fx.popular.items = []entity.ScoredID{{ID: "p1", Score: 0.9}, {ID: "p2", Score: 0.5}}
	fx.store.put(feature.History, "u1", entity.IDsValue([]string{"p1"}))

	got, err := fx.svc.Recommend(context.Background(), "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, ids(got))
}

func TestSearch_FallbackMarksSearchUnavailable(t *testing.T) {
	fx := newFixture(t, nil, 0)
	fx.lexical.err = errors.New("postgres down")
	fx.popular.items = []entity.ScoredID{{ID: "p7", Score: 0.6}}

	got, err := fx.svc.Search(context.Background(), "shoes", "", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"p7"}, ids(got))
	assert.Equal(t, entity.ComponentUnavailable, got[0].Components.Search.Status)
	assert.Equal(t, []entity.Source{entity.SourcePopularity}, got[0].Sources)
}

func TestSearch_AllSourcesFailed(t *testing.T) {
	fx := newFixture(t, nil, 0)
	fx.lexical.err = errors.New("postgres down")
	fx.popular.err = errors.New("redis down")

	_, err := fx.svc.Search(context.Background(), "shoes", "", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAllSourcesFailed)
	assert.Equal(t, 503, apperrors.AsAppError(err).HTTPStatus)
}

func TestSearch_NoMatchReturnsEmpty(t *testing.T) {
	fx := newFixture(t, nil, 0)

	got, err := fx.svc.Search(context.Background(), "unicorn", "", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestValidation(t *testing.T) {
	fx := newFixture(t, nil, 0)
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
	}{
		{"empty query", func() error { _, err := fx.svc.Search(ctx, "  ", "", 10); return err }},
		{"punctuation only", func() error { _, err := fx.svc.Search(ctx, "?!.", "", 10); return err }},
		{"zero k", func() error { _, err := fx.svc.Search(ctx, "shoes", "", 0); return err }},
		{"negative k", func() error { _, err := fx.svc.Recommend(ctx, "u1", -1); return err }},
		{"k over max", func() error { _, err := fx.svc.Search(ctx, "shoes", "", 101); return err }},
		{"missing user", func() error { _, err := fx.svc.Recommend(ctx, " ", 10); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidParam)
			assert.Equal(t, 400, apperrors.AsAppError(err).HTTPStatus)
		})
	}
	assert.Equal(t, int32(0), fx.lexical.calls.Load())
}

func TestSearch_CanceledRequest(t *testing.T) {
	fx := newFixture(t, nil, 0)
	fx.seedShoes()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := fx.svc.Search(ctx, "shoes", "", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, int32(0), fx.popular.calls.Load())
}

func TestSearch_ResponseCache(t *testing.T) {
	responses := &memoryResponses{}
	fx := newFixture(t, responses, time.Minute)
	fx.seedShoes()

	first, err := fx.svc.Search(context.Background(), "Shoes!", "", 5)
	require.NoError(t, err)
	second, err := fx.svc.Search(context.Background(), "  shoes ", "", 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), fx.lexical.calls.Load())
	assert.Len(t, responses.data, 1)
}

func TestSearch_TruncatesToK(t *testing.T) {
	fx := newFixture(t, nil, 0)
	fx.seedShoes()

	got, err := fx.svc.Search(context.Background(), "shoes", "", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids(got))
}
