package retrieval

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/infrastructure/breaker"
	"hybrid-ranking-api/pkg/logger"
	"hybrid-ranking-api/pkg/metrics"
)

// SourceBreaker 召回源熔断器
type SourceBreaker = breaker.Breaker[[]entity.ScoredID]

// Outcome 单个召回源的执行结果
type Outcome struct {
	Source   entity.Source
	Count    int
	Duration time.Duration
	Err      *SourceError
	// Fallback 是否作为兜底执行
	Fallback bool
}

// OK 是否成功返回
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Result 一次扇出的结果
type Result struct {
	Lists    map[entity.Source][]entity.ScoredID
	Outcomes []Outcome
}

// AllFailed 没有任何源成功返回
func (r *Result) AllFailed() bool {
	for _, o := range r.Outcomes {
		if o.OK() {
			return false
		}
	}
	return true
}

// FallbackUsed 是否启用了兜底
func (r *Result) FallbackUsed() bool {
	for _, o := range r.Outcomes {
		if o.Fallback {
			return true
		}
	}
	return false
}

// FanOut 并发执行召回源，每个源独立熔断与超时
type FanOut struct {
	adapters []Adapter
	fallback Adapter
	breakers map[entity.Source]*SourceBreaker
	timeouts map[entity.Source]time.Duration
}

// NewFanOut 创建扇出执行器
//
// fallback 在当前模式的全部召回源失败时执行，可为空。
func NewFanOut(adapters []Adapter, fallback Adapter, registry *breaker.Registry, timeouts map[entity.Source]time.Duration) *FanOut {
	f := &FanOut{
		adapters: adapters,
		fallback: fallback,
		breakers: make(map[entity.Source]*SourceBreaker),
		timeouts: timeouts,
	}

	all := append([]Adapter{}, adapters...)
	if fallback != nil {
		all = append(all, fallback)
	}
	for _, a := range all {
		src := a.Source()
		if _, ok := f.breakers[src]; ok {
			continue
		}
		settings := registry.Settings("source_" + string(src))
		settings.IsFailure = countsAsFailure
		f.breakers[src] = breaker.RegisterWith[[]entity.ScoredID](registry, settings)
	}
	return f
}

// Run 执行当前模式的全部召回源，等待每个源返回或超时
func (f *FanOut) Run(ctx context.Context, req Request, k int) *Result {
	res := &Result{Lists: make(map[entity.Source][]entity.ScoredID, len(f.adapters))}

	var active []Adapter
	for _, a := range f.adapters {
		if a.Supports(req.Mode) {
			active = append(active, a)
		}
	}
	f.runAll(ctx, active, req, k, res, false)

	if f.fallback == nil || !res.AllFailed() || ctx.Err() != nil {
		return res
	}
	for _, a := range active {
		if a.Source() == f.fallback.Source() {
			return res
		}
	}

	logger.Warn(ctx, "all candidate sources failed, using fallback source",
		"mode", string(req.Mode),
		"fallback", string(f.fallback.Source()),
	)
	f.runAll(ctx, []Adapter{f.fallback}, req, k, res, true)
	return res
}

func (f *FanOut) runAll(ctx context.Context, adapters []Adapter, req Request, k int, res *Result, fallback bool) {
	if len(adapters) == 0 {
		return
	}

	type slot struct {
		items   []entity.ScoredID
		outcome Outcome
	}
	slots := make([]slot, len(adapters))

	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			items, outcome := f.call(ctx, a, req, k)
			outcome.Fallback = fallback
			slots[i] = slot{items: items, outcome: outcome}
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range slots {
		if s.outcome.OK() {
			res.Lists[s.outcome.Source] = s.items
		}
		res.Outcomes = append(res.Outcomes, s.outcome)
	}
}

func (f *FanOut) call(ctx context.Context, a Adapter, req Request, k int) ([]entity.ScoredID, Outcome) {
	src := a.Source()
	cb := f.breakers[src]
	start := time.Now()

	items, err := cb.Execute(ctx, func(ctx context.Context) ([]entity.ScoredID, error) {
		return breaker.WithTimeout(ctx, f.timeouts[src], func(ctx context.Context) ([]entity.ScoredID, error) {
			return a.Retrieve(ctx, req, k)
		})
	})

	outcome := Outcome{Source: src, Duration: time.Since(start)}
	metrics.AdapterDuration.WithLabelValues(string(src)).Observe(outcome.Duration.Seconds())

	if err != nil {
		se := classify(src, err)
		outcome.Err = se

		label := string(se.Kind)
		if errors.Is(err, breaker.ErrShortCircuited) {
			label = "short_circuited"
		}
		metrics.AdapterCallsTotal.WithLabelValues(string(src), label).Inc()

		if errors.Is(err, ErrNoSignal) {
			logger.Debug(ctx, "retrieval source has no signal", "source", string(src))
		} else {
			logger.Warn(ctx, "retrieval source failed",
				"source", string(src),
				"kind", string(se.Kind),
				"user_id", req.UserID,
				"error", err.Error(),
			)
		}
		return nil, outcome
	}

	metrics.AdapterCallsTotal.WithLabelValues(string(src), "ok").Inc()
	outcome.Count = len(items)
	return items, outcome
}
