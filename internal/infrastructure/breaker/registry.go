package breaker

import (
	"sort"
	"sync"

	"hybrid-ranking-api/internal/config"
)

// stateReporter 提供状态查询的熔断器
type stateReporter interface {
	Name() string
	State() string
}

// Registry 按名称管理熔断器，供就绪检查输出状态
type Registry struct {
	mu       sync.RWMutex
	cfg      config.BreakerConfig
	breakers map[string]stateReporter
}

// NewRegistry 创建熔断器注册表
func NewRegistry(cfg config.BreakerConfig) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]stateReporter),
	}
}

// Settings 返回注册表配置下的熔断器参数
func (r *Registry) Settings(name string) Settings {
	return SettingsFromConfig(name, r.cfg)
}

// Register 使用注册表配置创建并登记熔断器
func Register[T any](r *Registry, name string) *Breaker[T] {
	return RegisterWith[T](r, r.Settings(name))
}

// RegisterWith 使用自定义参数创建并登记熔断器
func RegisterWith[T any](r *Registry, s Settings) *Breaker[T] {
	b := New[T](s)
	r.mu.Lock()
	r.breakers[b.Name()] = b
	r.mu.Unlock()
	return b
}

// States 返回所有熔断器状态
func (r *Registry) States() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		states[name] = b.State()
	}
	return states
}

// Names 返回已登记的熔断器名称（有序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
