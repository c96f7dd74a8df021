package ranking

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"hybrid-ranking-api/internal/domain/entity"
)

// Input 单个候选的排序输入
type Input struct {
	Candidate       *entity.Candidate
	Search          entity.ComponentScore
	CF              entity.ComponentScore
	Popularity      entity.ComponentScore
	Freshness       entity.ComponentScore
	Personalization *entity.Personalization
}

// OK 可用分项
func OK(v float64) entity.ComponentScore {
	return entity.ComponentScore{Value: clamp01(v), Status: entity.ComponentOK}
}

// Unavailable 不可用分项，按 0 参与计算
func Unavailable() entity.ComponentScore {
	return entity.ComponentScore{Status: entity.ComponentUnavailable}
}

// NotApplicable 当前模式不适用的分项
func NotApplicable() entity.ComponentScore {
	return entity.ComponentScore{Status: entity.ComponentNotApplicable}
}

// Engine 确定性加权排序
type Engine struct{}

// NewEngine 创建排序引擎
func NewEngine() *Engine {
	return &Engine{}
}

// Rank 计算 final = Σ weight * component，按得分降序、id 升序排列
func (e *Engine) Rank(inputs []Input, w entity.Weights) []entity.RankingBreakdown {
	out := make([]entity.RankingBreakdown, 0, len(inputs))
	for _, in := range inputs {
		if in.Candidate == nil {
			continue
		}
		comps := entity.Components{
			Search:     normalize(in.Search),
			CF:         normalize(in.CF),
			Popularity: normalize(in.Popularity),
			Freshness:  normalize(in.Freshness),
		}

		final := w.Search*contribution(comps.Search) +
			w.CF*contribution(comps.CF) +
			w.Popularity*contribution(comps.Popularity) +
			w.Freshness*contribution(comps.Freshness)

		bd := entity.RankingBreakdown{
			ProductID:       in.Candidate.ProductID,
			FinalScore:      clamp01(final),
			Components:      comps,
			WeightsUsed:     w,
			Sources:         in.Candidate.Sources(),
			Personalization: in.Personalization,
		}
		bd.Reason = reason(bd)
		out = append(out, bd)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

// normalize 未标记状态视为不可用，数值截断到 [0,1]
func normalize(c entity.ComponentScore) entity.ComponentScore {
	switch c.Status {
	case entity.ComponentOK:
		c.Value = clamp01(c.Value)
	case entity.ComponentNotApplicable:
		c.Value = 0
	default:
		c.Status = entity.ComponentUnavailable
		c.Value = 0
	}
	return c
}

func contribution(c entity.ComponentScore) float64 {
	if !c.Available() {
		return 0
	}
	return c.Value
}

var reasonLabels = []struct {
	name  string
	label string
}{
	{"search", "matches query"},
	{"cf", "personalized"},
	{"popularity", "popular"},
	{"freshness", "recently added"},
}

// reason 说明贡献最大的分项以及不可用分项
func reason(bd entity.RankingBreakdown) string {
	comps := []entity.ComponentScore{bd.Components.Search, bd.Components.CF, bd.Components.Popularity, bd.Components.Freshness}
	weights := []float64{bd.WeightsUsed.Search, bd.WeightsUsed.CF, bd.WeightsUsed.Popularity, bd.WeightsUsed.Freshness}

	best, bestVal := -1, 0.0
	var missing []string
	for i, c := range comps {
		if c.Status == entity.ComponentUnavailable {
			missing = append(missing, reasonLabels[i].name)
			continue
		}
		if v := weights[i] * contribution(c); v > bestVal {
			best, bestVal = i, v
		}
	}

	var sb strings.Builder
	if best < 0 {
		sb.WriteString("no positive signal")
	} else {
		fmt.Fprintf(&sb, "%s (%.2f of %.2f)", reasonLabels[best].label, bestVal, bd.FinalScore)
	}
	if len(missing) > 0 {
		sb.WriteString("; unavailable: ")
		sb.WriteString(strings.Join(missing, ", "))
	}
	return sb.String()
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
