package entity

// Source 召回源
type Source string

const (
	SourceLexical    Source = "lexical"
	SourceSemantic   Source = "semantic"
	SourceCF         Source = "cf"
	SourcePopularity Source = "popularity"
)

// Mode 请求模式
type Mode string

const (
	ModeSearch    Mode = "search"
	ModeRecommend Mode = "recommend"
)

// Candidate 单次请求内的候选商品
type Candidate struct {
	ProductID    string             `json:"product_id"`
	SourceScores map[Source]float64 `json:"source_scores"`
	// SearchScore 搜索模式下 max(lexical, semantic)，推荐模式恒为 0
	SearchScore float64 `json:"search_score"`
	MergedScore float64 `json:"merged_score"`
}

// NewCandidate 创建候选
func NewCandidate(productID string) *Candidate {
	return &Candidate{
		ProductID:    productID,
		SourceScores: make(map[Source]float64, 4),
	}
}

// Score 返回某召回源的分数以及该源是否召回了此候选
func (c *Candidate) Score(src Source) (float64, bool) {
	v, ok := c.SourceScores[src]
	return v, ok
}

// HasSearchSignal 是否被 lexical 或 semantic 召回
func (c *Candidate) HasSearchSignal() bool {
	_, lex := c.SourceScores[SourceLexical]
	_, sem := c.SourceScores[SourceSemantic]
	return lex || sem
}

// Sources 返回召回此候选的源，按固定顺序
func (c *Candidate) Sources() []Source {
	out := make([]Source, 0, len(c.SourceScores))
	for _, s := range []Source{SourceLexical, SourceSemantic, SourceCF, SourcePopularity} {
		if _, ok := c.SourceScores[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// ScoredID 召回源返回的 (id, 原始分) 对
type ScoredID struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}
