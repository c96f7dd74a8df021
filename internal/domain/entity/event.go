package entity

import (
	"fmt"
	"time"
)

// EventType 用户行为类型
type EventType string

const (
	EventTypeView      EventType = "view"
	EventTypeAddToCart EventType = "add_to_cart"
	EventTypePurchase  EventType = "purchase"
)

// EventWeights 行为权重，购买 > 加购 > 浏览
var EventWeights = map[EventType]float64{
	EventTypePurchase:  3,
	EventTypeAddToCart: 2,
	EventTypeView:      1,
}

// Weight 行为权重，未知类型为 0
func (t EventType) Weight() float64 {
	return EventWeights[t]
}

// Valid 是否为已知行为类型
func (t EventType) Valid() bool {
	_, ok := EventWeights[t]
	return ok
}

// Event 用户行为事件
//
// 排序只消费事件的聚合结果（interaction_count、view_count、history），不直接读取单条事件。
type Event struct {
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Type      EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// Normalize 补全缺省字段并校验，缺省类型按浏览处理
func (e *Event) Normalize(now time.Time) error {
	if e.UserID == "" || e.ProductID == "" {
		return fmt.Errorf("event requires user_id and product_id")
	}
	if e.Type == "" {
		e.Type = EventTypeView
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.Timestamp = e.Timestamp.UTC()
	return nil
}
