package retrieval

import (
	"sort"

	"hybrid-ranking-api/internal/domain/entity"
)

// DefaultMaxCandidates 合并后进入排序的候选上限
const DefaultMaxCandidates = 200

var sourceOrder = []entity.Source{
	entity.SourceLexical,
	entity.SourceSemantic,
	entity.SourceCF,
	entity.SourcePopularity,
}

// SortScored 同一 id 保留最高分，按分数降序、id 升序排序
func SortScored(items []entity.ScoredID) []entity.ScoredID {
	best := make(map[string]float64, len(items))
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if cur, ok := best[it.ID]; !ok || it.Score > cur {
			best[it.ID] = it.Score
		}
	}

	out := make([]entity.ScoredID, 0, len(best))
	for id, score := range best {
		out = append(out, entity.ScoredID{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Merge 按商品 id 合并各召回源结果
//
// 搜索模式 search_score = max(lexical, semantic)，推荐模式为 0。
// 其余源分数独立保存在 SourceScores 中。merged_score 取各源最高分，用于截断到 limit。
func Merge(mode entity.Mode, lists map[entity.Source][]entity.ScoredID, limit int) []*entity.Candidate {
	byID := make(map[string]*entity.Candidate)

	for _, src := range sourceOrder {
		for _, it := range SortScored(lists[src]) {
			c, ok := byID[it.ID]
			if !ok {
				c = entity.NewCandidate(it.ID)
				byID[it.ID] = c
			}
			c.SourceScores[src] = it.Score
		}
	}

	out := make([]*entity.Candidate, 0, len(byID))
	for _, c := range byID {
		if mode == entity.ModeSearch {
			lex, _ := c.Score(entity.SourceLexical)
			sem, _ := c.Score(entity.SourceSemantic)
			c.SearchScore = maxFloat(lex, sem)
		}
		for _, s := range c.SourceScores {
			c.MergedScore = maxFloat(c.MergedScore, s)
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].MergedScore != out[j].MergedScore {
			return out[i].MergedScore > out[j].MergedScore
		}
		return out[i].ProductID < out[j].ProductID
	})

	if limit <= 0 {
		limit = DefaultMaxCandidates
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
