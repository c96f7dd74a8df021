package entity

import (
	"time"
)

// EntityKind 特征所属实体类型
type EntityKind string

const (
	EntityProduct EntityKind = "product"
	EntityUser    EntityKind = "user"
)

// FeatureValue 特征值，按特征类型只填充其中一个字段
type FeatureValue struct {
	Number float64            `json:"n,omitempty"`
	Text   string             `json:"s,omitempty"`
	Vector []float32          `json:"v,omitempty"`
	Map    map[string]float64 `json:"m,omitempty"`
	IDs    []string           `json:"ids,omitempty"`
	Time   *time.Time         `json:"t,omitempty"`
}

// NumberValue 数值特征
func NumberValue(v float64) FeatureValue { return FeatureValue{Number: v} }

// TextValue 文本特征
func TextValue(s string) FeatureValue { return FeatureValue{Text: s} }

// VectorValue 向量特征
func VectorValue(v []float32) FeatureValue { return FeatureValue{Vector: v} }

// MapValue 映射特征
func MapValue(m map[string]float64) FeatureValue {
	if m == nil {
		m = map[string]float64{}
	}
	return FeatureValue{Map: m}
}

// IDsValue ID 列表特征
func IDsValue(ids []string) FeatureValue {
	if ids == nil {
		ids = []string{}
	}
	return FeatureValue{IDs: ids}
}

// TimeValue 时间特征
func TimeValue(t time.Time) FeatureValue {
	t = t.UTC()
	return FeatureValue{Time: &t}
}

// FeatureEntry 快速缓存层中的特征条目
type FeatureEntry struct {
	EntityID  string       `json:"entity_id"`
	Feature   string       `json:"feature"`
	Value     FeatureValue `json:"value"`
	Version   int          `json:"version"`
	FetchedAt time.Time    `json:"fetched_at"`
	// Missing 负缓存条目：后备存储确认该实体没有此特征
	Missing bool `json:"missing,omitempty"`
}

// Fresh 条目在 ttl 内是否仍然有效
func (e *FeatureEntry) Fresh(ttl time.Duration, now time.Time) bool {
	return now.Before(e.FetchedAt.Add(ttl))
}
