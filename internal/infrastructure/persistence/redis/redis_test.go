package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        mr.Addr(),
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return WrapClient(rdb), mr
}

func TestFeatureCache_RoundTrip(t *testing.T) {
	client, mr := newTestClient(t)
	fc := NewFeatureCache(client)
	ctx := context.Background()

	fetched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	items := []repository.FeatureCacheItem{
		{
			Key:   "feature:popularity:p1:v1",
			Entry: entity.FeatureEntry{EntityID: "p1", Feature: "popularity", Value: entity.NumberValue(0.8), Version: 1, FetchedAt: fetched},
			TTL:   5 * time.Minute,
		},
		{
			Key:   "feature:affinity:u1:v1",
			Entry: entity.FeatureEntry{EntityID: "u1", Feature: "affinity", Value: entity.MapValue(map[string]float64{"shoes": 0.9}), Version: 1, FetchedAt: fetched},
			TTL:   24 * time.Hour,
		},
	}
	require.NoError(t, fc.SetEntries(ctx, items))
	assert.Equal(t, 5*time.Minute, mr.TTL("feature:popularity:p1:v1"))

	got, err := fc.GetEntries(ctx, []string{"feature:popularity:p1:v1", "feature:affinity:u1:v1", "feature:popularity:p9:v1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.8, got["feature:popularity:p1:v1"].Value.Number, 1e-9)
	assert.True(t, got["feature:popularity:p1:v1"].FetchedAt.Equal(fetched))
	assert.Equal(t, map[string]float64{"shoes": 0.9}, got["feature:affinity:u1:v1"].Value.Map)
}

func TestFeatureCache_CorruptEntryIsMiss(t *testing.T) {
	client, mr := newTestClient(t)
	require.NoError(t, mr.Set("feature:popularity:p1:v1", "{not json"))

	got, err := NewFeatureCache(client).GetEntries(context.Background(), []string{"feature:popularity:p1:v1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFeatureCache_ServerDown(t *testing.T) {
	client, mr := newTestClient(t)
	mr.Close()

	_, err := NewFeatureCache(client).GetEntries(context.Background(), []string{"feature:popularity:p1:v1"})
	assert.Error(t, err)
}

type fakePopular struct {
	mu    sync.Mutex
	calls int
	items []entity.ScoredID
	err   error
}

func (f *fakePopular) TopPopular(ctx context.Context, category string, limit int) ([]entity.ScoredID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

func TestPopularCache_CachesSourceResult(t *testing.T) {
	client, mr := newTestClient(t)
	src := &fakePopular{items: []entity.ScoredID{{ID: "p1", Score: 0.9}, {ID: "p2", Score: 0.5}}}
	pc := NewPopularCache(NewCache(client), src, time.Minute)
	ctx := context.Background()

	first, err := pc.TopPopular(ctx, "shoes", 20)
	require.NoError(t, err)
	second, err := pc.TopPopular(ctx, "shoes", 20)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls)
	assert.True(t, mr.Exists("popular:shoes:20"))
	assert.Equal(t, time.Minute, mr.TTL("popular:shoes:20"))
	assert.Equal(t, "popular:global:10", PopularKey("", 10))
}

func TestPopularCache_SourceErrorPropagates(t *testing.T) {
	client, mr := newTestClient(t)
	src := &fakePopular{err: errors.New("db down")}
	pc := NewPopularCache(NewCache(client), src, time.Minute)

	_, err := pc.TopPopular(context.Background(), "", 10)
	require.Error(t, err)
	assert.Equal(t, "db down", err.Error())
	assert.False(t, mr.Exists("popular:global:10"))
}

func TestPopularCache_RedisDownReadsSource(t *testing.T) {
	client, mr := newTestClient(t)
	mr.Close()
	src := &fakePopular{items: []entity.ScoredID{{ID: "p1", Score: 0.9}}}
	pc := NewPopularCache(NewCache(client), src, time.Minute)

	got, err := pc.TopPopular(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Equal(t, src.items, got)
}

func TestResponseCache_MissThenHit(t *testing.T) {
	client, _ := newTestClient(t)
	rc := NewResponseCache(NewCache(client))
	ctx := context.Background()

	_, ok, err := rc.Get(ctx, "search:abc")
	require.NoError(t, err)
	assert.False(t, ok)

	results := []entity.RankingBreakdown{{ProductID: "p1", FinalScore: 0.7}}
	require.NoError(t, rc.Set(ctx, "search:abc", results, time.Minute))

	got, ok, err := rc.Get(ctx, "search:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ProductID)
	assert.InDelta(t, 0.7, got[0].FinalScore, 1e-9)
}

func TestCache_InvalidatePattern(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCache(client)
	for _, k := range []string{"feature:popularity:p1:v1", "feature:popularity:p2:v1", "feature:affinity:u1:v1", "popular:global:10"} {
		require.NoError(t, mr.Set(k, "{}"))
	}

	require.NoError(t, cache.InvalidatePattern(context.Background(), "feature:popularity:*"))
	assert.False(t, mr.Exists("feature:popularity:p1:v1"))
	assert.False(t, mr.Exists("feature:popularity:p2:v1"))
	assert.True(t, mr.Exists("feature:affinity:u1:v1"))

	require.NoError(t, cache.InvalidatePopular(context.Background()))
	assert.False(t, mr.Exists("popular:global:10"))
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	client, _ := newTestClient(t)
	limiter := NewRateLimiter(client)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	ctx := context.Background()
	key := BuildRateLimitKey("", "10.0.0.1", "/v1/search")
	assert.Equal(t, "ratelimit:10.0.0.1:/v1/search", key)

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, key, 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := limiter.Allow(ctx, key, 3, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := limiter.Remaining(ctx, key, 3, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	limiter.now = func() time.Time { return base.Add(2 * time.Second) }
	ok, err = limiter.Allow(ctx, key, 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, limiter.Reset(ctx, key))
	remaining, err = limiter.Remaining(ctx, key, 3, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}
