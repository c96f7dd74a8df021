package retrieval

import "hybrid-ranking-api/internal/domain/entity"

// EnhancedQuery 查询增强结果
type EnhancedQuery struct {
	Original   string
	Normalized string
	// Query 纠错后的查询，语义召回与结果缓存使用
	Query string
	Spell SpellResult
	// Text 同义词展开后的全文检索查询
	Text entity.TextQuery
}

// QueryEnhancer 归一化 -> 拼写纠错 -> 同义词展开，各步骤均可为空
type QueryEnhancer struct {
	normalizer *QueryNormalizer
	speller    *SpellCorrector
	synonyms   *SynonymExpander
}

// NewQueryEnhancer 创建查询增强器
func NewQueryEnhancer(normalizer *QueryNormalizer, speller *SpellCorrector, synonyms *SynonymExpander) *QueryEnhancer {
	return &QueryEnhancer{normalizer: normalizer, speller: speller, synonyms: synonyms}
}

// Enhance 只做确定性的词典变换，相同输入总是得到相同结果
func (e *QueryEnhancer) Enhance(query string) EnhancedQuery {
	out := EnhancedQuery{Original: query}
	if e == nil {
		out.Normalized = NormalizeQuery(query)
		out.Query = out.Normalized
		out.Text = entity.PlainTextQuery(out.Query)
		return out
	}

	out.Normalized = e.normalizer.Normalize(query)
	out.Query = out.Normalized
	if out.Query == "" {
		return out
	}

	if e.speller != nil {
		out.Spell = e.speller.Correct(out.Query)
		if out.Spell.Applied {
			out.Query = out.Spell.Query
		}
	}
	out.Text = e.synonyms.Expand(out.Query)
	return out
}
