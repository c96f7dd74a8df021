// Package messaging 提供基于 Redis Stream 的特征刷新消息
package messaging

import (
	"encoding/json"
	"strings"
	"time"
)

// Message 消息结构
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage 创建新消息
func NewMessage(id, msgType string, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:        id,
		Type:      msgType,
		Payload:   payloadBytes,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// GetMetadata 获取元数据
func (m *Message) GetMetadata(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// Stream 流定义
type Stream string

const (
	StreamFeatureRefresh Stream = "stream:features:refresh"
)

// DLQStream 获取对应的死信队列流名称
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组定义
type ConsumerGroup string

const (
	ConsumerGroupFeatureWorker ConsumerGroup = "cg-feature-worker"
)

// 特征刷新消息类型
const (
	TypePopularityRefreshed = "popularity_refreshed"
	TypeFactorsRefreshed    = "factors_refreshed"
	TypeAffinityRefreshed   = "affinity_refreshed"
	TypeEmbeddingsRefreshed = "embeddings_refreshed"
)

// RefreshJob 消息类型对应的离线任务名，例如 popularity_refreshed -> popularity
func RefreshJob(msgType string) string {
	return strings.TrimSuffix(msgType, "_refreshed")
}

// RefreshTypes 全部特征刷新消息类型
func RefreshTypes() []string {
	return []string{TypePopularityRefreshed, TypeFactorsRefreshed, TypeAffinityRefreshed, TypeEmbeddingsRefreshed}
}

// FeatureRefreshMessage 离线任务完成后的特征刷新通知
type FeatureRefreshMessage struct {
	Type string `json:"type"`
	// EntityIDs 为空表示全量刷新
	EntityIDs   []string  `json:"entity_ids,omitempty"`
	Job         string    `json:"job,omitempty"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 默认退避配置
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}
}

// CalculateBackoff 计算退避时间
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	backoff := c.Initial
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * c.Multiplier)
		if backoff > c.Max {
			backoff = c.Max
			break
		}
	}
	return backoff
}
