package feature

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybrid-ranking-api/internal/config"
	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
)

// memoryCache 内存版特征缓存
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]entity.FeatureEntry
	ttls    map[string]time.Duration
	getErr  error
	gets    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		entries: make(map[string]entity.FeatureEntry),
		ttls:    make(map[string]time.Duration),
	}
}

func (c *memoryCache) GetEntries(ctx context.Context, keys []string) (map[string]entity.FeatureEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, c.getErr
	}
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
	for _, it := range items {
		c.entries[it.Key] = it.Entry
		c.ttls[it.Key] = it.TTL
	}
	return nil
}

// fakeStore 记录每个特征的调用次数
type fakeStore struct {
	mu    sync.Mutex
	data  map[string]map[string]entity.FeatureValue
	calls map[string][][]string
	err   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data:  make(map[string]map[string]entity.FeatureValue),
		calls: make(map[string][][]string),
	}
}

func (s *fakeStore) put(feature, id string, v entity.FeatureValue) {
	if s.data[feature] == nil {
		s.data[feature] = make(map[string]entity.FeatureValue)
	}
	s.data[feature][id] = v
}

func (s *fakeStore) LoadFeature(ctx context.Context, feature string, ids []string) (map[string]entity.FeatureValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[feature] = append(s.calls[feature], append([]string(nil), ids...))
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]entity.FeatureValue)
	for _, id := range ids {
		if v, ok := s.data[feature][id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (s *fakeStore) callCount(feature string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls[feature])
}

// slowStore 首次调用时通知 started，并在 delay 后才返回
type slowStore struct {
	*fakeStore
	delay   time.Duration
	started chan struct{}
	once    sync.Once
}

func (s *slowStore) LoadFeature(ctx context.Context, feature string, ids []string) (map[string]entity.FeatureValue, error) {
	s.once.Do(func() { close(s.started) })
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.fakeStore.LoadFeature(ctx, feature, ids)
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func linearFreshness(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt).Hours() / 24
	if age <= 0 {
		return 1
	}
	return 1 / (1 + age)
}

func newTestResolver(t *testing.T, cache repository.FeatureCache, store repository.FeatureStore) *Resolver {
	t.Helper()
	reg, err := NewBuiltinRegistry(linearFreshness, nil)
	require.NoError(t, err)
	r := NewResolver(reg, cache, store, nil, config.FeaturesConfig{
		CacheTimeout: 50 * time.Millisecond,
		StoreTimeout: 100 * time.Millisecond,
		StaleGrace:   24 * time.Hour,
	})
	r.now = func() time.Time { return testNow }
	return r
}

func TestBatchResolve_SecondCallWithinTTLHitsCache(t *testing.T) {
	cache := newMemoryCache()
	store := newFakeStore()
	store.put(Popularity, "p1", entity.NumberValue(0.9))
	store.put(Popularity, "p2", entity.NumberValue(0.4))
	r := newTestResolver(t, cache, store)

	first, err := r.BatchResolve(context.Background(), []string{"p1", "p2"}, []string{Popularity})
	require.NoError(t, err)
	assert.Equal(t, 1, store.callCount(Popularity))

	r.now = func() time.Time { return testNow.Add(4 * time.Minute) }
	second, err := r.BatchResolve(context.Background(), []string{"p1", "p2"}, []string{Popularity})
	require.NoError(t, err)

	assert.Equal(t, 1, store.callCount(Popularity), "second call inside TTL must not reach the store")
	assert.Equal(t, first, second)
	assert.InDelta(t, 0.9, second["p1"][Popularity].Number, 1e-9)
}

func TestBatchResolve_ExpiredEntryRefetches(t *testing.T) {
	cache := newMemoryCache()
	store := newFakeStore()
	store.put(Popularity, "p1", entity.NumberValue(0.9))
	r := newTestResolver(t, cache, store)

	_, err := r.BatchResolve(context.Background(), []string{"p1"}, []string{Popularity})
	require.NoError(t, err)

	r.now = func() time.Time { return testNow.Add(6 * time.Minute) }
	_, err = r.BatchResolve(context.Background(), []string{"p1"}, []string{Popularity})
	require.NoError(t, err)
	assert.Equal(t, 2, store.callCount(Popularity))
}

func TestBatchResolve_OneStoreCallPerFeature(t *testing.T) {
	store := newFakeStore()
	for _, id := range []string{"p1", "p2", "p3"} {
		store.put(Category, id, entity.TextValue("shoes"))
	}
	r := newTestResolver(t, newMemoryCache(), store)

	_, err := r.BatchResolve(context.Background(), []string{"p1", "p2", "p3", "p1"}, []string{Popularity, Category})
	require.NoError(t, err)

	assert.Equal(t, 1, store.callCount(Popularity))
	assert.Equal(t, 1, store.callCount(Category))
	ids := store.calls[Popularity][0]
	sort.Strings(ids)
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids)
}

func TestBatchResolve_DefaultsAndWriteThrough(t *testing.T) {
	cache := newMemoryCache()
	r := newTestResolver(t, cache, newFakeStore())

	products, err := r.BatchResolve(context.Background(), []string{"unknown"}, []string{Popularity, Embedding})
	require.NoError(t, err)
	assert.InDelta(t, DefaultPopularity, products["unknown"][Popularity].Number, 1e-9)
	_, hasEmbedding := products["unknown"][Embedding]
	assert.False(t, hasEmbedding, "features without a default stay absent")

	users, err := r.BatchResolve(context.Background(), []string{"u1"}, []string{Affinity})
	require.NoError(t, err)
	assert.NotNil(t, users["u1"][Affinity].Map)
	assert.Empty(t, users["u1"][Affinity].Map)

	key := Key(Popularity, "unknown", 1)
	require.Contains(t, cache.entries, key)
	assert.Equal(t, 5*time.Minute+24*time.Hour, cache.ttls[key])
	assert.Equal(t, testNow, cache.entries[key].FetchedAt)
}

func TestBatchResolve_CancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	store := &slowStore{fakeStore: newFakeStore(), delay: 50 * time.Millisecond, started: make(chan struct{})}
	store.put(Popularity, "p1", entity.NumberValue(0.9))
	r := newTestResolver(t, nil, store)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	var (
		wg   sync.WaitGroup
		gotA map[string]Values
		gotB map[string]Values
		errA error
		errB error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		gotA, errA = r.BatchResolve(ctxA, []string{"p1"}, []string{Popularity})
	}()

	<-store.started
	wg.Add(1)
	go func() {
		defer wg.Done()
		gotB, errB = r.BatchResolve(context.Background(), []string{"p1"}, []string{Popularity})
	}()
	time.Sleep(10 * time.Millisecond)
	cancelA()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.InDelta(t, DefaultPopularity, gotA["p1"][Popularity].Number, 1e-9, "the cancelled caller degrades on its own")
	assert.InDelta(t, 0.9, gotB["p1"][Popularity].Number, 1e-9, "the caller that was not cancelled gets the stored value")
	assert.Equal(t, 1, store.callCount(Popularity), "both callers share one store call")
	assert.Equal(t, "closed", r.breaker.State())
}

func TestBatchResolve_NegativeCacheSkipsStore(t *testing.T) {
	cache := newMemoryCache()
	store := newFakeStore()
	r := newTestResolver(t, cache, store)

	_, err := r.BatchResolve(context.Background(), []string{"cold"}, []string{Embedding})
	require.NoError(t, err)
	require.Equal(t, 1, store.callCount(Embedding))

	key := Key(Embedding, "cold", 1)
	require.Contains(t, cache.entries, key)
	assert.True(t, cache.entries[key].Missing)
	assert.Equal(t, time.Minute, cache.ttls[key])

	r.now = func() time.Time { return testNow.Add(30 * time.Second) }
	got, err := r.BatchResolve(context.Background(), []string{"cold"}, []string{Embedding})
	require.NoError(t, err)
	_, ok := got["cold"][Embedding]
	assert.False(t, ok)
	assert.Equal(t, 1, store.callCount(Embedding), "a fresh negative entry must not reach the store")

	store.put(Embedding, "cold", entity.VectorValue([]float32{1, 0}))
	r.now = func() time.Time { return testNow.Add(2 * time.Minute) }
	got, err = r.BatchResolve(context.Background(), []string{"cold"}, []string{Embedding})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, got["cold"][Embedding].Vector)
	assert.Equal(t, 2, store.callCount(Embedding))
}

func TestBatchResolve_ExpiredNegativeEntryIsNotStale(t *testing.T) {
	cache := newMemoryCache()
	cache.entries[Key(CFItemFactor, "p1", 1)] = entity.FeatureEntry{
		EntityID:  "p1",
		Feature:   CFItemFactor,
		Version:   1,
		FetchedAt: testNow.Add(-2 * time.Hour),
		Missing:   true,
	}
	store := newFakeStore()
	store.err = errors.New("connection refused")
	r := newTestResolver(t, cache, store)

	got, err := r.BatchResolve(context.Background(), []string{"p1"}, []string{CFItemFactor})
	require.NoError(t, err)
	_, ok := got["p1"][CFItemFactor]
	assert.False(t, ok, "a negative entry is never served as a stale value")
	assert.Equal(t, 1, store.callCount(CFItemFactor))
}

func TestBatchResolve_StoreFailureServesStaleThenDefault(t *testing.T) {
	cache := newMemoryCache()
	staleKey := Key(Popularity, "p1", 1)
	cache.entries[staleKey] = entity.FeatureEntry{
		EntityID:  "p1",
		Feature:   Popularity,
		Value:     entity.NumberValue(0.7),
		Version:   1,
		FetchedAt: testNow.Add(-2 * time.Hour),
	}
	store := newFakeStore()
	store.err = errors.New("connection refused")
	r := newTestResolver(t, cache, store)

	got, err := r.BatchResolve(context.Background(), []string{"p1", "p2"}, []string{Popularity, CFItemFactor})
	require.NoError(t, err)

	assert.InDelta(t, 0.7, got["p1"][Popularity].Number, 1e-9, "stale cached value wins over default")
	assert.InDelta(t, DefaultPopularity, got["p2"][Popularity].Number, 1e-9)
	_, ok := got["p1"][CFItemFactor]
	assert.False(t, ok)

	assert.Equal(t, testNow.Add(-2*time.Hour), cache.entries[staleKey].FetchedAt, "fallback values are not written back")
}

func TestBatchResolve_CacheFailureFallsThroughToStore(t *testing.T) {
	cache := newMemoryCache()
	cache.getErr = errors.New("redis down")
	store := newFakeStore()
	store.put(InteractionCount, "u1", entity.NumberValue(12))
	r := newTestResolver(t, cache, store)

	got, err := r.BatchResolve(context.Background(), []string{"u1"}, []string{InteractionCount})
	require.NoError(t, err)
	assert.Equal(t, 12.0, got["u1"][InteractionCount].Number)
	assert.Equal(t, 1, store.callCount(InteractionCount))
}

func TestBatchResolve_DerivedFreshness(t *testing.T) {
	store := newFakeStore()
	store.put(CreatedAt, "p1", entity.TimeValue(testNow.Add(-24*time.Hour)))
	r := newTestResolver(t, newMemoryCache(), store)

	got, err := r.BatchResolve(context.Background(), []string{"p1", "p3"}, []string{Freshness})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, got["p1"][Freshness].Number, 1e-9)
	_, ok := got["p1"][CreatedAt]
	assert.False(t, ok, "dependencies are not returned unless requested")
	_, ok = got["p3"][Freshness]
	assert.False(t, ok, "no created_at means no freshness")
	assert.Equal(t, 1, store.callCount(CreatedAt))
	assert.Equal(t, 0, store.callCount(Freshness))
}

func TestBatchResolve_UnknownFeature(t *testing.T) {
	r := newTestResolver(t, newMemoryCache(), newFakeStore())
	_, err := r.BatchResolve(context.Background(), []string{"p1"}, []string{"nope"})
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestResolveUser(t *testing.T) {
	store := newFakeStore()
	store.put(InteractionCount, "u1", entity.NumberValue(7))
	store.put(Affinity, "u1", entity.MapValue(map[string]float64{"shoes": 0.8}))
	store.put(History, "u1", entity.IDsValue([]string{"p9", "p8"}))
	store.put(CFUserFactor, "u1", entity.VectorValue([]float32{0.1, 0.2}))
	r := newTestResolver(t, newMemoryCache(), store)

	u, err := r.ResolveUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, u.InteractionCount)
	assert.Equal(t, map[string]float64{"shoes": 0.8}, u.CategoryAffinity)
	assert.Equal(t, []string{"p9", "p8"}, u.History)
	assert.True(t, u.HasFactor())

	cold, err := r.ResolveUser(context.Background(), "new-user")
	require.NoError(t, err)
	assert.Equal(t, 0, cold.InteractionCount)
	assert.False(t, cold.HasFactor())
	assert.Empty(t, cold.History)
}
