package feature

import (
	"context"
	"fmt"

	"hybrid-ranking-api/pkg/logger"
)

// CacheInvalidator 快速缓存层的失效操作
type CacheInvalidator interface {
	Delete(ctx context.Context, keys ...string) error
	InvalidatePattern(ctx context.Context, pattern string) error
	InvalidatePopular(ctx context.Context) error
	InvalidateResponses(ctx context.Context) error
}

// Invalidator 离线刷新后使相关缓存失效
type Invalidator struct {
	registry *Registry
	cache    CacheInvalidator
}

// NewInvalidator 创建失效器
func NewInvalidator(registry *Registry, cache CacheInvalidator) *Invalidator {
	return &Invalidator{registry: registry, cache: cache}
}

// Invalidate entityIDs 为空时按特征整体失效
func (v *Invalidator) Invalidate(ctx context.Context, features []string, entityIDs []string) error {
	touchedPopularity := false
	for _, name := range features {
		d, ok := v.registry.Get(name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownFeature, name)
		}
		if name == Popularity {
			touchedPopularity = true
		}
		// 派生特征不落缓存
		if d.Derived() {
			continue
		}

		if len(entityIDs) == 0 {
			if err := v.cache.InvalidatePattern(ctx, Pattern(name)); err != nil {
				return fmt.Errorf("invalidate %s: %w", name, err)
			}
			continue
		}
		keys := make([]string, 0, len(entityIDs))
		for _, id := range uniqueIDs(entityIDs) {
			keys = append(keys, Key(name, id, d.Version))
		}
		if len(keys) == 0 {
			continue
		}
		if err := v.cache.Delete(ctx, keys...); err != nil {
			return fmt.Errorf("invalidate %s: %w", name, err)
		}
	}

	if touchedPopularity {
		if err := v.cache.InvalidatePopular(ctx); err != nil {
			return fmt.Errorf("invalidate popular lists: %w", err)
		}
	}
	if err := v.cache.InvalidateResponses(ctx); err != nil {
		return fmt.Errorf("invalidate responses: %w", err)
	}

	logger.Info(ctx, "feature cache invalidated", "features", features, "entity_count", len(entityIDs))
	return nil
}
