// Package feature 提供特征注册与分层缓存解析
package feature

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"hybrid-ranking-api/internal/domain/entity"
)

var (
	// ErrUnknownFeature 特征未注册
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrFeatureCycle 特征依赖存在环
	ErrFeatureCycle = errors.New("feature dependency cycle")
)

// DeriveFunc 由依赖特征计算派生值，返回 false 表示依赖缺失
type DeriveFunc func(deps map[string]entity.FeatureValue, now time.Time) (entity.FeatureValue, bool)

// Definition 特征定义
type Definition struct {
	Name   string
	Entity entity.EntityKind
	// TTL 缓存逻辑有效期
	TTL     time.Duration
	Version int
	// DependsOn 派生特征的依赖
	DependsOn []string
	// Default 后备存储缺失时的兜底值，为空表示没有兜底
	Default *entity.FeatureValue
	// Derive 非空时为派生特征，不访问缓存与后备存储
	Derive DeriveFunc
}

// Derived 是否为派生特征
func (d Definition) Derived() bool {
	return d.Derive != nil
}

// Registry 特征注册表，依赖关系在构建时按拓扑序解析一次
type Registry struct {
	defs  map[string]Definition
	order []string
}

// NewRegistry 创建注册表并校验依赖图
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("feature definition without name")
		}
		if _, dup := r.defs[d.Name]; dup {
			return nil, fmt.Errorf("duplicate feature %q", d.Name)
		}
		if d.Version <= 0 {
			d.Version = 1
		}
		r.defs[d.Name] = d
	}

	order, err := topoSort(r.defs)
	if err != nil {
		return nil, err
	}
	r.order = order
	return r, nil
}

// topoSort Kahn 拓扑排序，同层按名称排序保证结果稳定
func topoSort(defs map[string]Definition) ([]string, error) {
	indegree := make(map[string]int, len(defs))
	dependents := make(map[string][]string, len(defs))

	for name, d := range defs {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range d.DependsOn {
			if _, ok := defs[dep]; !ok {
				return nil, fmt.Errorf("%w: %q depends on %q", ErrUnknownFeature, name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ready := make([]string, 0, len(defs))
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(defs))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		next := dependents[name]
		sort.Strings(next)
		for _, d := range next {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
		sort.Strings(ready)
	}

	if len(order) != len(defs) {
		var stuck []string
		for name, n := range indegree {
			if n > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: %v", ErrFeatureCycle, stuck)
	}
	return order, nil
}

// Get 获取特征定义
func (r *Registry) Get(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Order 返回全部特征的拓扑序
func (r *Registry) Order() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ByEntity 返回某类实体的非派生特征，按拓扑序
func (r *Registry) ByEntity(kind entity.EntityKind) []string {
	var out []string
	for _, name := range r.order {
		d := r.defs[name]
		if d.Entity == kind && !d.Derived() {
			out = append(out, name)
		}
	}
	return out
}

// Expand 补全传递依赖并按拓扑序返回
func (r *Registry) Expand(names []string) ([]string, error) {
	need := make(map[string]struct{}, len(names))
	var visit func(name string) error
	visit = func(name string) error {
		if _, seen := need[name]; seen {
			return nil
		}
		d, ok := r.defs[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownFeature, name)
		}
		need[name] = struct{}{}
		for _, dep := range d.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, n := range names {
		if err := visit(n); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(need))
	for _, name := range r.order {
		if _, ok := need[name]; ok {
			out = append(out, name)
		}
	}
	return out, nil
}

// Key 快速缓存层 key
func Key(name, entityID string, version int) string {
	return fmt.Sprintf("feature:%s:%s:v%d", name, entityID, version)
}

// Pattern 某特征全部版本的 key 模式
func Pattern(name string) string {
	return fmt.Sprintf("feature:%s:*", name)
}
