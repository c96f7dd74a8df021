package retrieval

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMaxEditDistance     = 2
	DefaultConfidenceThreshold = 0.8
	// minCorrectableLength 过短的词纠错误报率太高
	minCorrectableLength = 3
)

// commonTerms 商品目录之外的常用搜索词
var commonTerms = []string{
	"running", "shoes", "sneakers", "trainers", "athletic",
	"laptop", "notebook", "computer", "phone", "smartphone",
	"headphones", "earphones", "earbuds", "watch", "smart",
	"wireless", "bluetooth", "charging", "cable", "usb",
	"jacket", "coat", "shirt", "jeans", "dress", "bag",
	"tablet", "mouse", "keyboard", "monitor", "display",
	"speaker", "charger", "power", "bank", "battery",
	"buy", "cheap", "discount", "sale", "best", "top",
	"new", "latest", "popular", "rated", "review",
}

// SpellCorrector 基于词典的拼写纠错
//
// 每个词取编辑距离最小的词典词，置信度为 1 - 0.1*距离，仅当高于阈值时替换。
type SpellCorrector struct {
	words       map[string]struct{}
	byLength    map[int][]string
	maxDistance int
	threshold   float64
}

// SpellResult 纠错结果
type SpellResult struct {
	Query      string
	Confidence float64
	Applied    bool
}

// NewSpellCorrector 由词典词构建纠错器，词统一归一化并去重
func NewSpellCorrector(vocabulary []string, maxDistance int, threshold float64) *SpellCorrector {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxEditDistance
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultConfidenceThreshold
	}

	c := &SpellCorrector{
		words:       make(map[string]struct{}),
		byLength:    make(map[int][]string),
		maxDistance: maxDistance,
		threshold:   threshold,
	}
	for _, text := range append(append([]string(nil), commonTerms...), vocabulary...) {
		for _, w := range strings.Fields(NormalizeQuery(text)) {
			if _, ok := c.words[w]; ok {
				continue
			}
			c.words[w] = struct{}{}
			n := utf8.RuneCountInString(w)
			c.byLength[n] = append(c.byLength[n], w)
		}
	}
	for _, ws := range c.byLength {
		sort.Strings(ws)
	}
	return c
}

// Size 词典词数
func (c *SpellCorrector) Size() int {
	if c == nil {
		return 0
	}
	return len(c.words)
}

// Correct 逐词纠错，query 应已归一化
func (c *SpellCorrector) Correct(query string) SpellResult {
	words := strings.Fields(query)
	if c == nil || len(c.words) == 0 || len(words) == 0 {
		return SpellResult{Query: query}
	}

	out := make([]string, len(words))
	var total float64
	applied := 0
	for i, w := range words {
		out[i] = w
		suggestion, distance, ok := c.suggest(w)
		if !ok || distance == 0 {
			total += 1
			continue
		}
		confidence := 1 - 0.1*float64(distance)
		if confidence > c.threshold {
			out[i] = suggestion
			total += confidence
			applied++
		}
	}

	avg := total / float64(len(words))
	return SpellResult{
		Query:      strings.Join(out, " "),
		Confidence: avg,
		Applied:    applied > 0 && avg > c.threshold,
	}
}

// suggest 返回距离最小的词典词，距离相同取字典序最小
func (c *SpellCorrector) suggest(word string) (string, int, bool) {
	if _, ok := c.words[word]; ok {
		return word, 0, true
	}
	n := utf8.RuneCountInString(word)
	if n < minCorrectableLength || hasDigit(word) {
		return "", 0, false
	}

	best, bestDistance := "", c.maxDistance+1
	for l := n - c.maxDistance; l <= n+c.maxDistance; l++ {
		for _, candidate := range c.byLength[l] {
			d := editDistance(word, candidate, bestDistance)
			if d < bestDistance || (d == bestDistance && d <= c.maxDistance && candidate < best) {
				best, bestDistance = candidate, d
			}
		}
	}
	if bestDistance > c.maxDistance {
		return "", 0, false
	}
	return best, bestDistance, true
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// editDistance 限定上界的 Damerau (OSA) 编辑距离，超过 limit 时返回 limit+1
func editDistance(a, b string, limit int) int {
	ra, rb := []rune(a), []rune(b)
	if d := len(ra) - len(rb); d > limit || -d > limit {
		return limit + 1
	}

	prev2 := make([]int, len(rb)+1)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			v := min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				v = min(v, prev2[j-2]+1)
			}
			cur[j] = v
			rowMin = min(rowMin, v)
		}
		if rowMin > limit {
			return limit + 1
		}
		prev2, prev, cur = prev, cur, prev2
	}
	if prev[len(rb)] > limit {
		return limit + 1
	}
	return prev[len(rb)]
}
