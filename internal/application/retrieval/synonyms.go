package retrieval

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"hybrid-ranking-api/internal/domain/entity"
)

// DefaultMaxSynonyms 每个词最多展开的同义词数
const DefaultMaxSynonyms = 5

// SynonymExpander 同义词 OR 展开
type SynonymExpander struct {
	dict  map[string][]string
	max   int
	boost float64
}

// NewSynonymExpander 创建同义词展开器，键和值统一归一化，自身与重复项被丢弃
func NewSynonymExpander(dict map[string][]string, maxPerTerm int, boost float64) *SynonymExpander {
	if maxPerTerm <= 0 {
		maxPerTerm = DefaultMaxSynonyms
	}
	if boost <= 0 || boost > 1 {
		boost = entity.DefaultSynonymBoost
	}
	return &SynonymExpander{dict: NormalizeSynonyms(dict), max: maxPerTerm, boost: boost}
}

// NormalizeSynonyms 归一化同义词词典，保留同义词原有顺序；
// 归一化后相同的键按原键字典序合并
func NormalizeSynonyms(dict map[string][]string) map[string][]string {
	keys := make([]string, 0, len(dict))
	for key := range dict {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[string][]string, len(dict))
	for _, key := range keys {
		syns := dict[key]
		k := NormalizeQuery(key)
		if k == "" {
			continue
		}
		seen := map[string]struct{}{k: {}}
		for _, s := range out[k] {
			seen[s] = struct{}{}
		}
		for _, s := range syns {
			s = NormalizeQuery(s)
			if _, dup := seen[s]; s == "" || dup {
				continue
			}
			seen[s] = struct{}{}
			out[k] = append(out[k], s)
		}
	}
	return out
}

// Size 词典中的词条数
func (e *SynonymExpander) Size() int {
	if e == nil {
		return 0
	}
	return len(e.dict)
}

// Synonyms 单个词的同义词，最多 max 个
func (e *SynonymExpander) Synonyms(term string) []string {
	if e == nil {
		return nil
	}
	syns := e.dict[term]
	if len(syns) > e.max {
		syns = syns[:e.max]
	}
	return append([]string(nil), syns...)
}

// Expand 把归一化后的查询展开为检索词项
func (e *SynonymExpander) Expand(query string) entity.TextQuery {
	words := strings.Fields(query)
	q := entity.TextQuery{Terms: make([]entity.QueryTerm, len(words))}
	if e != nil {
		q.SynonymBoost = e.boost
	}
	for i, w := range words {
		q.Terms[i] = entity.QueryTerm{Text: w, Synonyms: e.Synonyms(w)}
	}
	return q
}

// LoadSynonymFile 读取 JSON 同义词词典：{"sneakers": ["trainers", "running shoes"]}
func LoadSynonymFile(path string) (map[string][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read synonym dictionary: %w", err)
	}
	var dict map[string][]string
	if err := json.Unmarshal(raw, &dict); err != nil {
		return nil, fmt.Errorf("failed to parse synonym dictionary %s: %w", path, err)
	}
	return dict, nil
}
