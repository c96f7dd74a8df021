// Package breaker 提供基于 gobreaker 的熔断器封装
package breaker

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"hybrid-ranking-api/internal/config"
	"hybrid-ranking-api/pkg/logger"
	"hybrid-ranking-api/pkg/metrics"
)

// ErrShortCircuited 熔断器拒绝调用，底层函数未被执行
var ErrShortCircuited = errors.New("circuit breaker short-circuited")

// Settings 熔断器参数
type Settings struct {
	Name string
	// Window 闭合状态下统计错误率的窗口
	Window time.Duration
	// Cooldown 打开状态持续时间
	Cooldown time.Duration
	// FailureRatio 触发打开的错误率阈值
	FailureRatio float64
	// MinRequests 窗口内触发判断所需的最少请求数
	MinRequests uint32
	// HalfOpenRatio 半开状态放行比例
	HalfOpenRatio float64
	// HalfOpenTrials 半开状态转为闭合所需的连续成功次数
	HalfOpenTrials uint32
	// IsFailure 判断错误是否计入失败，为空时使用 DefaultIsFailure
	IsFailure func(err error) bool
}

// SettingsFromConfig 从配置构建熔断器参数
func SettingsFromConfig(name string, cfg config.BreakerConfig) Settings {
	return Settings{
		Name:           name,
		Window:         cfg.Window,
		Cooldown:       cfg.Cooldown,
		FailureRatio:   cfg.FailureRatio,
		MinRequests:    cfg.MinRequests,
		HalfOpenRatio:  cfg.HalfOpenRatio,
		HalfOpenTrials: cfg.HalfOpenTrials,
	}
}

// DefaultIsFailure 调用方取消不计入失败
func DefaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

func (s Settings) withDefaults() Settings {
	if s.Window <= 0 {
		s.Window = time.Minute
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.FailureRatio <= 0 || s.FailureRatio > 1 {
		s.FailureRatio = 0.5
	}
	if s.MinRequests == 0 {
		s.MinRequests = 1
	}
	if s.HalfOpenRatio <= 0 || s.HalfOpenRatio > 1 {
		s.HalfOpenRatio = 0.1
	}
	if s.HalfOpenTrials == 0 {
		s.HalfOpenTrials = 1
	}
	if s.IsFailure == nil {
		s.IsFailure = DefaultIsFailure
	}
	return s
}

// Breaker 单个受保护调用点的熔断器
type Breaker[T any] struct {
	name       string
	cb         *gobreaker.CircuitBreaker[T]
	admitEvery uint64
	admitted   atomic.Uint64
}

// New 创建熔断器
//
// 闭合状态按 Window 做滚动窗口统计，窗口到期计数清零。
// 半开状态按 HalfOpenRatio 确定性放行：每 round(1/ratio) 个调用放行一个，其余直接拒绝。
func New[T any](s Settings) *Breaker[T] {
	s = s.withDefaults()

	every := uint64(math.Round(1 / s.HalfOpenRatio))
	if every == 0 {
		every = 1
	}

	b := &Breaker[T]{
		name:       s.Name,
		admitEvery: every,
	}

	metrics.BreakerState.WithLabelValues(s.Name).Set(stateToFloat(gobreaker.StateClosed))

	isFailure := s.IsFailure
	b.cb = gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.HalfOpenTrials,
		Interval:    s.Window,
		Timeout:     s.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateHalfOpen {
				b.admitted.Store(0)
			}
			fromStr := stateToString(from)
			toStr := stateToString(to)
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.BreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			logger.Warn(context.Background(), "circuit breaker state changed",
				"breaker", name,
				"from", fromStr,
				"to", toStr,
			)
		},
		IsSuccessful: func(err error) bool {
			return !isFailure(err)
		},
	})

	return b
}

// Name 返回熔断器名称
func (b *Breaker[T]) Name() string {
	return b.name
}

// State 返回当前状态字符串
func (b *Breaker[T]) State() string {
	return stateToString(b.cb.State())
}

// Counts 返回当前窗口计数
func (b *Breaker[T]) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Execute 在熔断保护下执行 fn
func (b *Breaker[T]) Execute(ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if b.cb.State() == gobreaker.StateHalfOpen && !b.admit() {
		return zero, ErrShortCircuited
	}

	result, err := b.cb.Execute(func() (T, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, ErrShortCircuited
		}
		return zero, err
	}
	return result, nil
}

// admit 半开状态放行判定
func (b *Breaker[T]) admit() bool {
	n := b.admitted.Add(1)
	return n%b.admitEvery == 0
}

// WithTimeout 在超时约束下执行 fn，即使 fn 忽略 ctx 也能按时返回
func WithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(callCtx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-callCtx.Done():
		var zero T
		return zero, callCtx.Err()
	}
}

// stateToFloat 状态转指标数值
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString 状态转字符串
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
