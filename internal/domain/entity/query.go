package entity

import "strings"

// DefaultSynonymBoost 仅经同义词命中时相对原词的分数折扣
const DefaultSynonymBoost = 0.8

// QueryTerm 查询词项，原词与同义词之间为 OR 关系
type QueryTerm struct {
	Text     string   `json:"text"`
	Synonyms []string `json:"synonyms,omitempty"`
}

// Alternatives 原词在前，随后是同义词
func (t QueryTerm) Alternatives() []string {
	out := make([]string, 0, 1+len(t.Synonyms))
	out = append(out, t.Text)
	return append(out, t.Synonyms...)
}

// TextQuery 全文检索查询，词项之间为 AND 关系
type TextQuery struct {
	Terms []QueryTerm `json:"terms"`
	// SynonymBoost 同义词命中的分数折扣，<= 0 时取 DefaultSynonymBoost
	SynonymBoost float64 `json:"synonym_boost,omitempty"`
}

// PlainTextQuery 按空白切分，不带同义词
func PlainTextQuery(query string) TextQuery {
	words := strings.Fields(query)
	terms := make([]QueryTerm, len(words))
	for i, w := range words {
		terms[i] = QueryTerm{Text: w}
	}
	return TextQuery{Terms: terms}
}

// Empty 没有任何词项
func (q TextQuery) Empty() bool {
	return len(q.Terms) == 0
}

// Expanded 是否有词项带同义词
func (q TextQuery) Expanded() bool {
	for _, t := range q.Terms {
		if len(t.Synonyms) > 0 {
			return true
		}
	}
	return false
}

// Boost 生效的同义词折扣
func (q TextQuery) Boost() float64 {
	if q.SynonymBoost <= 0 || q.SynonymBoost > 1 {
		return DefaultSynonymBoost
	}
	return q.SynonymBoost
}

// String 仅包含原词的查询文本
func (q TextQuery) String() string {
	words := make([]string, len(q.Terms))
	for i, t := range q.Terms {
		words[i] = t.Text
	}
	return strings.Join(words, " ")
}

// Expression OR 展开后的可读形式，例如 "(sneakers OR trainers) red"
func (q TextQuery) Expression() string {
	parts := make([]string, len(q.Terms))
	for i, t := range q.Terms {
		if len(t.Synonyms) == 0 {
			parts[i] = t.Text
			continue
		}
		parts[i] = "(" + strings.Join(t.Alternatives(), " OR ") + ")"
	}
	return strings.Join(parts, " ")
}
