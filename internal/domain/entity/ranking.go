package entity

// ComponentStatus 分项状态
type ComponentStatus string

const (
	ComponentOK            ComponentStatus = "ok"
	ComponentUnavailable   ComponentStatus = "unavailable"
	ComponentNotApplicable ComponentStatus = "not_applicable"
)

// ComponentScore 单个分项得分
type ComponentScore struct {
	Value  float64         `json:"value"`
	Status ComponentStatus `json:"status"`
}

// Available 分项是否参与计算
func (c ComponentScore) Available() bool {
	return c.Status == ComponentOK
}

// Components 四个排序分项
type Components struct {
	Search     ComponentScore `json:"search"`
	CF         ComponentScore `json:"cf"`
	Popularity ComponentScore `json:"popularity"`
	Freshness  ComponentScore `json:"freshness"`
}

// Weights 排序权重
type Weights struct {
	Search     float64 `json:"search"`
	CF         float64 `json:"cf"`
	Popularity float64 `json:"popularity"`
	Freshness  float64 `json:"freshness"`
}

// DefaultWeights 默认排序权重
func DefaultWeights() Weights {
	return Weights{Search: 0.4, CF: 0.3, Popularity: 0.2, Freshness: 0.1}
}

// Personalization 冷启动混合明细
type Personalization struct {
	InteractionCount int            `json:"interaction_count"`
	ColdStart        bool           `json:"cold_start"`
	CFWeight         float64        `json:"cf_weight"`
	ContentWeight    float64        `json:"content_weight"`
	CFRaw            ComponentScore `json:"cf_raw"`
	Content          float64        `json:"content"`
	// ContentSource history 表示历史商品相似度，popularity 表示回退到热度
	ContentSource string  `json:"content_source"`
	Blended       float64 `json:"blended"`
}

// RankingBreakdown 单个结果的可解释得分
type RankingBreakdown struct {
	ProductID       string           `json:"product_id"`
	FinalScore      float64          `json:"final_score"`
	Components      Components       `json:"components"`
	WeightsUsed     Weights          `json:"weights_used"`
	Sources         []Source         `json:"sources"`
	Personalization *Personalization `json:"personalization,omitempty"`
	Reason          string           `json:"reason,omitempty"`
}
