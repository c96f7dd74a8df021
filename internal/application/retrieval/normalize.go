package retrieval

import (
	"regexp"
	"strings"
)

var (
	punctPattern = regexp.MustCompile(`[^\p{L}\p{N}_\s-]+`)
	spacePattern = regexp.MustCompile(`[\s-]+`)
)

// QueryNormalizer 查询归一化
type QueryNormalizer struct {
	abbreviations map[string]string
}

// NewQueryNormalizer 创建查询归一化器，abbreviations 的键值统一转小写
func NewQueryNormalizer(abbreviations map[string]string) *QueryNormalizer {
	m := make(map[string]string, len(abbreviations))
	for k, v := range abbreviations {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.ToLower(strings.TrimSpace(v))
		if k != "" && v != "" {
			m[k] = v
		}
	}
	return &QueryNormalizer{abbreviations: m}
}

// Normalize 小写、去标点、压缩空白并展开缩写
func (n *QueryNormalizer) Normalize(query string) string {
	q := NormalizeQuery(query)
	if q == "" || n == nil || len(n.abbreviations) == 0 {
		return q
	}

	words := strings.Fields(q)
	for i, w := range words {
		if exp, ok := n.abbreviations[w]; ok {
			words[i] = exp
		}
	}
	return strings.Join(words, " ")
}

// NormalizeQuery 小写、去标点并压缩空白
func NormalizeQuery(query string) string {
	q := strings.ToLower(query)
	q = punctPattern.ReplaceAllString(q, " ")
	q = spacePattern.ReplaceAllString(q, " ")
	return strings.TrimSpace(q)
}
