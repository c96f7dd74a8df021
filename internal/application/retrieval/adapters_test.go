package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybrid-ranking-api/internal/domain/entity"
)

type fakeLexical struct {
	gotQuery entity.TextQuery
	items    []entity.ScoredID
}

func (f *fakeLexical) SearchText(ctx context.Context, query entity.TextQuery, limit int) ([]entity.ScoredID, error) {
	f.gotQuery = query
	return f.items, nil
}

type fakeVector struct {
	gotVector []float32
	items     []entity.ScoredID
}

func (f *fakeVector) SearchSimilar(ctx context.Context, vector []float32, limit int) ([]entity.ScoredID, error) {
	f.gotVector = vector
	return f.items, nil
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

type fakeFactors struct {
	items []entity.ScoredID
}

func (f *fakeFactors) SearchItems(ctx context.Context, userFactor []float32, limit int) ([]entity.ScoredID, error) {
	return f.items, nil
}

type fakePopular struct {
	lists map[string][]entity.ScoredID
	err   map[string]error
}

func (f *fakePopular) TopPopular(ctx context.Context, category string, limit int) ([]entity.ScoredID, error) {
	if err := f.err[category]; err != nil {
		return nil, err
	}
	return f.lists[category], nil
}

func TestLexicalAdapter(t *testing.T) {
	idx := &fakeLexical{items: []entity.ScoredID{{ID: "p1", Score: 1.4}, {ID: "p2", Score: 0.5}}}
	a := NewLexicalAdapter(idx)

	got, err := a.Retrieve(context.Background(), Request{Mode: entity.ModeSearch, Query: "Shoes!"}, 10)
	require.NoError(t, err)
	assert.Equal(t, "shoes", idx.gotQuery.String())
	assert.False(t, idx.gotQuery.Expanded())
	assert.Equal(t, 1.0, got[0].Score)

	_, err = a.Retrieve(context.Background(), Request{Mode: entity.ModeSearch, Query: "?!"}, 10)
	assert.True(t, IsInvalidInput(err))
	assert.False(t, a.Supports(entity.ModeRecommend))
}

func TestLexicalAdapter_PassesExpandedQuery(t *testing.T) {
	idx := &fakeLexical{}
	a := NewLexicalAdapter(idx)

	text := entity.TextQuery{Terms: []entity.QueryTerm{
		{Text: "sneakers", Synonyms: []string{"trainers"}},
		{Text: "red"},
	}}
	_, err := a.Retrieve(context.Background(), Request{Mode: entity.ModeSearch, Query: "sneakers red", Text: text}, 10)
	require.NoError(t, err)
	assert.Equal(t, text, idx.gotQuery)
	assert.Equal(t, "(sneakers OR trainers) red", idx.gotQuery.Expression())
}

func TestSemanticAdapter_ClipsCosine(t *testing.T) {
	idx := &fakeVector{items: []entity.ScoredID{{ID: "p1", Score: 0.8}, {ID: "p2", Score: -0.3}}}
	a := NewSemanticAdapter(idx, &fakeEmbedder{vector: []float32{1, 0}})

	got, err := a.Retrieve(context.Background(), Request{Mode: entity.ModeSearch, Query: "shoes"}, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.8, got[0].Score)
	assert.Equal(t, 0.0, got[1].Score)
	assert.Equal(t, []float32{1, 0}, idx.gotVector)
}

func TestSemanticAdapter_RecommendUsesHistoryVector(t *testing.T) {
	idx := &fakeVector{items: []entity.ScoredID{{ID: "p1", Score: 0.5}}}
	a := NewSemanticAdapter(idx, nil)

	_, err := a.Retrieve(context.Background(), Request{Mode: entity.ModeRecommend, UserID: "u1"}, 10)
	assert.ErrorIs(t, err, ErrNoSignal)

	_, err = a.Retrieve(context.Background(), Request{Mode: entity.ModeRecommend, HistoryVector: []float32{0.2, 0.4}}, 10)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.2, 0.4}, idx.gotVector)
}

func TestSemanticAdapter_EmbedderFailure(t *testing.T) {
	a := NewSemanticAdapter(&fakeVector{}, &fakeEmbedder{err: errors.New("quota")})
	_, err := a.Retrieve(context.Background(), Request{Mode: entity.ModeSearch, Query: "shoes"}, 10)
	assert.Error(t, err)
}

func TestCentroid(t *testing.T) {
	got := Centroid([][]float32{{1, 2}, {3, 4}, nil, {1, 2, 3}})
	assert.Equal(t, []float32{2, 3}, got)
	assert.Nil(t, Centroid(nil))
}

func TestCFAdapter(t *testing.T) {
	a := NewCFAdapter(&fakeFactors{items: []entity.ScoredID{{ID: "p1", Score: 0}}})

	_, err := a.Retrieve(context.Background(), Request{Mode: entity.ModeRecommend, Profile: &entity.User{ID: "u"}}, 10)
	assert.True(t, IsUnavailable(err))
	assert.ErrorIs(t, err, ErrNoSignal)

	got, err := a.Retrieve(context.Background(), Request{
		Mode:    entity.ModeRecommend,
		Profile: &entity.User{ID: "u", Factor: []float32{1, 1}},
	}, 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got[0].Score, 1e-9)
}

func TestAffinity(t *testing.T) {
	v, ok := Affinity([]float32{1, 0}, []float32{0, 1})
	assert.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-9)

	_, ok = Affinity([]float32{1, 0}, nil)
	assert.False(t, ok)
	_, ok = Affinity([]float32{1}, []float32{1, 2})
	assert.False(t, ok)

	scores := ScoreItems([]float32{2, 0}, map[string][]float32{
		"warm": {1, 0},
		"cold": nil,
	})
	assert.Contains(t, scores, "warm")
	assert.NotContains(t, scores, "cold")
	assert.Greater(t, scores["warm"], 0.5)
}

func TestPopularityAdapter_MergesTopCategory(t *testing.T) {
	src := &fakePopular{lists: map[string][]entity.ScoredID{
		"":      {{ID: "g1", Score: 0.9}, {ID: "s1", Score: 0.4}},
		"shoes": {{ID: "s1", Score: 0.7}, {ID: "s2", Score: 0.6}},
	}}
	a := NewPopularityAdapter(src)

	got, err := a.Retrieve(context.Background(), Request{
		Mode:    entity.ModeRecommend,
		Profile: &entity.User{CategoryAffinity: map[string]float64{"shoes": 0.9, "hats": 0.1}},
	}, 10)
	require.NoError(t, err)
	assert.Equal(t, []entity.ScoredID{{ID: "g1", Score: 0.9}, {ID: "s1", Score: 0.7}, {ID: "s2", Score: 0.6}}, got)
}

func TestPopularityAdapter_GlobalFailureUsesCategory(t *testing.T) {
	src := &fakePopular{
		lists: map[string][]entity.ScoredID{"shoes": {{ID: "s1", Score: 0.7}}},
		err:   map[string]error{"": errors.New("db down")},
	}
	a := NewPopularityAdapter(src)

	got, err := a.Retrieve(context.Background(), Request{
		Mode:    entity.ModeRecommend,
		Profile: &entity.User{CategoryAffinity: map[string]float64{"shoes": 0.9}},
	}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = a.Retrieve(context.Background(), Request{Mode: entity.ModeSearch}, 10)
	assert.Error(t, err)
}
