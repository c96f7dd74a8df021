package feature

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"hybrid-ranking-api/internal/config"
	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
	"hybrid-ranking-api/internal/infrastructure/breaker"
	"hybrid-ranking-api/pkg/logger"
	"hybrid-ranking-api/pkg/metrics"
)

const (
	// defaultStoreTimeout 共享加载不继承调用方截止时间，必须有自己的上限
	defaultStoreTimeout = 100 * time.Millisecond
	// defaultNegativeTTL 后备存储确认不存在的值的缓存时长
	defaultNegativeTTL = time.Minute
)

// StoreBreaker 后备存储熔断器
type StoreBreaker = breaker.Breaker[map[string]entity.FeatureValue]

// Values 单个实体的特征值
type Values map[string]entity.FeatureValue

// Resolver 特征解析器
//
// 解析顺序：快速缓存层 -> 后备存储（按特征批量、并发）-> 兜底值，加载结果回写缓存。
type Resolver struct {
	registry *Registry
	cache    repository.FeatureCache
	store    repository.FeatureStore
	breaker  *StoreBreaker

	cacheTimeout time.Duration
	storeTimeout time.Duration
	staleGrace   time.Duration
	negativeTTL  time.Duration

	group singleflight.Group
	now   func() time.Time
}

// NewResolver 创建特征解析器
func NewResolver(registry *Registry, cache repository.FeatureCache, store repository.FeatureStore, cb *StoreBreaker, cfg config.FeaturesConfig) *Resolver {
	if cb == nil {
		cb = breaker.New[map[string]entity.FeatureValue](breaker.Settings{Name: "feature_store"})
	}
	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	negativeTTL := cfg.NegativeTTL
	if negativeTTL <= 0 {
		negativeTTL = defaultNegativeTTL
	}
	return &Resolver{
		registry:     registry,
		cache:        cache,
		store:        store,
		breaker:      cb,
		cacheTimeout: cfg.CacheTimeout,
		storeTimeout: storeTimeout,
		staleGrace:   cfg.StaleGrace,
		negativeTTL:  negativeTTL,
		now:          time.Now,
	}
}

// Registry 返回特征注册表
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// missGroup 单个特征的缓存未命中集合
type missGroup struct {
	def   Definition
	ids   []string
	stale map[string]entity.FeatureEntry
}

// loadResult 单个特征的后备存储加载结果
type loadResult struct {
	values map[string]entity.FeatureValue
	err    error
}

// BatchResolve 批量解析实体特征
//
// 后备存储与缓存的故障不会返回错误，只会降级为旧值、兜底值或缺失；
// 仅在请求了未注册特征时返回错误。
func (r *Resolver) BatchResolve(ctx context.Context, entityIDs []string, featureNames []string) (map[string]Values, error) {
	ids := uniqueIDs(entityIDs)
	names, err := r.registry.Expand(featureNames)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Values, len(ids))
	for _, id := range ids {
		out[id] = make(Values, len(names))
	}
	if len(ids) == 0 {
		return out, nil
	}

	now := r.now()

	var stored []Definition
	for _, name := range names {
		if d, _ := r.registry.Get(name); !d.Derived() {
			stored = append(stored, d)
		}
	}

	cached := r.readCache(ctx, stored, ids)

	var misses []*missGroup
	for _, def := range stored {
		group := &missGroup{def: def, stale: make(map[string]entity.FeatureEntry)}
		negativeTTL := r.negativeTTLFor(def)
		for _, id := range ids {
			entry, ok := cached[Key(def.Name, id, def.Version)]
			if ok && entry.Missing {
				if entry.Fresh(negativeTTL, now) {
					metrics.FeatureLookups.WithLabelValues(def.Name, "negative_hit").Inc()
					continue
				}
				ok = false
			}
			if ok && entry.Fresh(def.TTL, now) {
				out[id][def.Name] = entry.Value
				metrics.FeatureLookups.WithLabelValues(def.Name, "hit").Inc()
				continue
			}
			if ok {
				group.stale[id] = entry
			}
			group.ids = append(group.ids, id)
		}
		if len(group.ids) > 0 {
			misses = append(misses, group)
		}
	}

	loaded := r.loadMisses(ctx, misses)

	var writes []repository.FeatureCacheItem
	for _, group := range misses {
		res := loaded[group.def.Name]
		if res.err == nil {
			writes = append(writes, r.applyLoaded(out, group, res.values, now)...)
			continue
		}
		r.applyFallback(ctx, out, group, res.err)
	}

	r.writeCache(ctx, writes)

	for _, name := range names {
		def, _ := r.registry.Get(name)
		if !def.Derived() {
			continue
		}
		for _, id := range ids {
			deps := make(map[string]entity.FeatureValue, len(def.DependsOn))
			for _, dep := range def.DependsOn {
				if v, ok := out[id][dep]; ok {
					deps[dep] = v
				}
			}
			if v, ok := def.Derive(deps, now); ok {
				out[id][name] = v
			}
		}
	}

	requested := make(map[string]struct{}, len(featureNames))
	for _, n := range featureNames {
		requested[n] = struct{}{}
	}
	for _, vals := range out {
		for name := range vals {
			if _, ok := requested[name]; !ok {
				delete(vals, name)
			}
		}
	}

	return out, nil
}

// readCache 一次 MGET 读取全部 key，缓存故障视为全部未命中
func (r *Resolver) readCache(ctx context.Context, defs []Definition, ids []string) map[string]entity.FeatureEntry {
	if r.cache == nil || len(defs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(defs)*len(ids))
	for _, def := range defs {
		for _, id := range ids {
			keys = append(keys, Key(def.Name, id, def.Version))
		}
	}

	cacheCtx, cancel := r.withTimeout(ctx, r.cacheTimeout)
	defer cancel()

	entries, err := r.cache.GetEntries(cacheCtx, keys)
	if err != nil {
		logger.Warn(ctx, "feature cache read failed, treating as miss",
			"keys", len(keys),
			"error", err.Error(),
		)
		return nil
	}
	return entries
}

// loadMisses 每个特征一次批量调用，不同特征并发执行
func (r *Resolver) loadMisses(ctx context.Context, groups []*missGroup) map[string]loadResult {
	results := make(map[string]loadResult, len(groups))
	if len(groups) == 0 {
		return results
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, group := range groups {
		g.Go(func() error {
			values, err := r.load(ctx, group.def.Name, group.ids)
			mu.Lock()
			results[group.def.Name] = loadResult{values: values, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// load 经熔断器调用后备存储，相同批次的并发加载合并为一次
func (r *Resolver) load(ctx context.Context, name string, ids []string) (map[string]entity.FeatureValue, error) {
	if r.store == nil {
		return nil, fmt.Errorf("feature store not configured")
	}

	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	key := name + "|" + strings.Join(sorted, ",")

	// 合并后的加载由多个请求共享，不能随任何一个调用方取消，只受 storeTimeout 约束；
	// 各调用方仍按自己的 ctx 提前返回
	sharedCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		start := time.Now()
		values, err := r.breaker.Execute(sharedCtx, func(ctx context.Context) (map[string]entity.FeatureValue, error) {
			return breaker.WithTimeout(ctx, r.storeTimeout, func(ctx context.Context) (map[string]entity.FeatureValue, error) {
				return r.store.LoadFeature(ctx, name, sorted)
			})
		})
		metrics.FeatureStoreDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		return values, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		values, _ := res.Val.(map[string]entity.FeatureValue)
		return values, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// applyLoaded 写入加载结果与兜底值，返回需回写缓存的条目
func (r *Resolver) applyLoaded(out map[string]Values, group *missGroup, values map[string]entity.FeatureValue, now time.Time) []repository.FeatureCacheItem {
	def := group.def
	items := make([]repository.FeatureCacheItem, 0, len(group.ids))

	for _, id := range group.ids {
		v, ok := values[id]
		switch {
		case ok:
			metrics.FeatureLookups.WithLabelValues(def.Name, "loaded").Inc()
		case def.Default != nil:
			v = cloneValue(*def.Default)
			metrics.FeatureLookups.WithLabelValues(def.Name, "default").Inc()
		default:
			// 后备存储确认无值且没有兜底值，写入短期负缓存，避免每个请求都回源
			metrics.FeatureLookups.WithLabelValues(def.Name, "missing").Inc()
			items = append(items, repository.FeatureCacheItem{
				Key: Key(def.Name, id, def.Version),
				Entry: entity.FeatureEntry{
					EntityID:  id,
					Feature:   def.Name,
					Version:   def.Version,
					FetchedAt: now,
					Missing:   true,
				},
				TTL: r.negativeTTLFor(def),
			})
			continue
		}

		out[id][def.Name] = v
		items = append(items, repository.FeatureCacheItem{
			Key: Key(def.Name, id, def.Version),
			Entry: entity.FeatureEntry{
				EntityID:  id,
				Feature:   def.Name,
				Value:     v,
				Version:   def.Version,
				FetchedAt: now,
			},
			TTL: def.TTL + r.staleGrace,
		})
	}
	return items
}

// applyFallback 后备存储失败时使用过期缓存或兜底值，不回写缓存
func (r *Resolver) applyFallback(ctx context.Context, out map[string]Values, group *missGroup, loadErr error) {
	def := group.def
	var stale, defaults, missing int

	for _, id := range group.ids {
		if entry, ok := group.stale[id]; ok {
			out[id][def.Name] = entry.Value
			stale++
			metrics.FeatureLookups.WithLabelValues(def.Name, "stale").Inc()
			continue
		}
		if def.Default != nil {
			out[id][def.Name] = cloneValue(*def.Default)
			defaults++
			metrics.FeatureLookups.WithLabelValues(def.Name, "default").Inc()
			continue
		}
		missing++
		metrics.FeatureLookups.WithLabelValues(def.Name, "missing").Inc()
	}

	logger.Warn(ctx, "feature store unavailable, degraded",
		"feature", def.Name,
		"entities", len(group.ids),
		"stale", stale,
		"defaults", defaults,
		"missing", missing,
		"error", loadErr.Error(),
	)
}

// writeCache 批量回写缓存，失败仅记录日志
func (r *Resolver) writeCache(ctx context.Context, items []repository.FeatureCacheItem) {
	if r.cache == nil || len(items) == 0 {
		return
	}

	cacheCtx, cancel := r.withTimeout(ctx, r.cacheTimeout)
	defer cancel()

	if err := r.cache.SetEntries(cacheCtx, items); err != nil {
		logger.Warn(ctx, "feature cache write failed",
			"entries", len(items),
			"error", err.Error(),
		)
	}
}

// negativeTTLFor 负缓存时长不超过特征自身的 TTL
func (r *Resolver) negativeTTLFor(def Definition) time.Duration {
	if def.TTL > 0 && def.TTL < r.negativeTTL {
		return def.TTL
	}
	return r.negativeTTL
}

func (r *Resolver) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// ResolveUser 解析用户画像特征
func (r *Resolver) ResolveUser(ctx context.Context, userID string) (*entity.User, error) {
	user := &entity.User{ID: userID}
	if userID == "" {
		return user, nil
	}

	names := r.registry.ByEntity(entity.EntityUser)
	values, err := r.BatchResolve(ctx, []string{userID}, names)
	if err != nil {
		return nil, err
	}

	vals := values[userID]
	if v, ok := vals[InteractionCount]; ok {
		user.InteractionCount = int(v.Number)
	}
	if v, ok := vals[Affinity]; ok {
		user.CategoryAffinity = v.Map
	}
	if v, ok := vals[History]; ok {
		user.History = v.IDs
	}
	if v, ok := vals[CFUserFactor]; ok {
		user.Factor = v.Vector
	}
	return user, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func cloneValue(v entity.FeatureValue) entity.FeatureValue {
	out := v
	if v.Vector != nil {
		out.Vector = append([]float32(nil), v.Vector...)
	}
	if v.Map != nil {
		out.Map = make(map[string]float64, len(v.Map))
		for k, x := range v.Map {
			out.Map[k] = x
		}
	}
	if v.IDs != nil {
		out.IDs = append([]string{}, v.IDs...)
	}
	if v.Time != nil {
		t := *v.Time
		out.Time = &t
	}
	return out
}
