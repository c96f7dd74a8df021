package config

import (
	"fmt"
	"math"
)

// Validate 校验配置取值范围
func (c *Config) Validate() error {
	w := c.Ranking.Weights
	for name, val := range map[string]float64{
		"search": w.Search, "cf": w.CF, "popularity": w.Popularity, "freshness": w.Freshness,
	} {
		if val < 0 || math.IsNaN(val) {
			return fmt.Errorf("ranking.weights.%s must be non-negative, got %v", name, val)
		}
	}
	if sum := w.Search + w.CF + w.Popularity + w.Freshness; sum > 1+1e-9 {
		return fmt.Errorf("ranking weights must sum to at most 1, got %.4f", sum)
	}
	if c.Ranking.FreshnessHalfLife <= 0 {
		return fmt.Errorf("ranking.freshness_half_life must be positive")
	}

	switch c.Retrieval.LexicalBackend {
	case "postgres", "meilisearch":
	default:
		return fmt.Errorf("retrieval.lexical_backend must be postgres or meilisearch, got %q", c.Retrieval.LexicalBackend)
	}
	if c.Retrieval.DefaultK <= 0 || c.Retrieval.MaxK < c.Retrieval.DefaultK {
		return fmt.Errorf("retrieval.default_k must be in [1, max_k]")
	}
	if s := c.Retrieval.Synonyms; s.Boost < 0 || s.Boost > 1 || s.MaxPerTerm < 0 {
		return fmt.Errorf("retrieval.synonyms.boost must be in [0, 1] and max_per_term non-negative")
	}
	if s := c.Retrieval.Spell; s.ConfidenceThreshold < 0 || s.ConfidenceThreshold >= 1 || s.MaxEditDistance < 0 {
		return fmt.Errorf("retrieval.spell.confidence_threshold must be in [0, 1) and max_edit_distance non-negative")
	}
	t := c.Retrieval.Timeouts
	if t.Lexical <= 0 || t.Semantic <= 0 || t.CF <= 0 || t.Popularity <= 0 {
		return fmt.Errorf("retrieval.timeouts must all be positive")
	}

	b := c.Breaker
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		return fmt.Errorf("breaker.failure_ratio must be in (0, 1]")
	}
	if b.HalfOpenRatio <= 0 || b.HalfOpenRatio > 1 {
		return fmt.Errorf("breaker.half_open_ratio must be in (0, 1]")
	}

	cs := c.ColdStart
	if cs.ColdCFWeight < 0 || cs.ColdCFWeight > 1 || cs.WarmCFWeight < 0 || cs.WarmCFWeight > 1 {
		return fmt.Errorf("coldstart cf weights must be in [0, 1]")
	}
	return nil
}
