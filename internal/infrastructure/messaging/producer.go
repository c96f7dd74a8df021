package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hybrid-ranking-api/pkg/logger"
)

var tracer = otel.Tracer("messaging")

// DefaultMaxLen 流的近似最大长度，刷新通知只需保留最近一段
const DefaultMaxLen int64 = 10000

// Producer 刷新通知生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Producer{client: client, maxLen: maxLen}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishFeatureRefresh 发布特征刷新通知，携带 job 与链路信息供消费端日志关联
func (p *Producer) PublishFeatureRefresh(ctx context.Context, refresh *FeatureRefreshMessage) (string, error) {
	if refresh.Type == "" {
		return "", fmt.Errorf("feature refresh message requires a type")
	}
	if refresh.RefreshedAt.IsZero() {
		refresh.RefreshedAt = time.Now().UTC()
	}
	msg, err := NewMessage(uuid.NewString(), refresh.Type, refresh)
	if err != nil {
		return "", err
	}
	if refresh.Job != "" {
		msg.SetMetadata("job", refresh.Job)
	}
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok && reqID != "" {
		msg.SetMetadata("request_id", reqID)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		msg.SetMetadata("trace_id", sc.TraceID().String())
	}

	return p.Publish(ctx, StreamFeatureRefresh, msg)
}
