package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"hybrid-ranking-api/pkg/logger"
	"hybrid-ranking-api/pkg/metrics"
)

const (
	readCount        = 10
	pendingPageSize  = 20
	dlqCheckInterval = time.Minute
	readErrorPause   = time.Second
)

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msg *Message) error

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
	// DLQAlertThreshold 死信数量超过该值时告警，0 表示不监控
	DLQAlertThreshold int64
}

// DeadLetter 死信记录
type DeadLetter struct {
	OriginalStream string   `json:"original_stream"`
	StreamID       string   `json:"stream_id"`
	Message        *Message `json:"data"`
	Error          string   `json:"error"`
	FailedAt       int64    `json:"failed_at"`
}

// Consumer 刷新通知消费者，失败消息按退避重投，超过次数进入死信队列
type Consumer struct {
	client       *redis.Client
	stream       Stream
	group        ConsumerGroup
	consumerName string
	cfg          ConsumerConfig
	reclaimIdle  time.Duration

	mu       sync.RWMutex
	handlers map[string]MessageHandler
}

// NewConsumer 创建消息消费者
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}

	// 其他消费者的消息空闲超过该时长视为其已退出
	reclaimIdle := 2 * cfg.Backoff.Max
	if reclaimIdle < 5*time.Minute {
		reclaimIdle = 5 * time.Minute
	}

	return &Consumer{
		client:       client,
		stream:       cfg.Stream,
		group:        cfg.Group,
		consumerName: cfg.ConsumerName,
		cfg:          cfg,
		reclaimIdle:  reclaimIdle,
		handlers:     make(map[string]MessageHandler),
	}
}

// RegisterHandler 注册消息处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Run 阻塞消费直到 ctx 取消
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, string(c.stream), string(c.group), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	logger.Info(ctx, "consumer started", "stream", string(c.stream), "group", string(c.group), "consumer", c.consumerName)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error { return c.sweepLoop(gctx) })
	if c.cfg.DLQAlertThreshold > 0 {
		g.Go(func() error { return c.monitorDLQ(gctx) })
	}

	err = g.Wait()
	logger.Info(ctx, "consumer stopped", "stream", string(c.stream))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Consumer) readLoop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    string(c.group),
			Consumer: c.consumerName,
			Streams:  []string{string(c.stream), ">"},
			Count:    readCount,
			Block:    c.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn(ctx, "failed to read from stream", "stream", string(c.stream), "error", err.Error())
			if !sleepCtx(ctx, readErrorPause) {
				return ctx.Err()
			}
			continue
		}

		for _, s := range streams {
			for _, xmsg := range s.Messages {
				c.processMessage(ctx, xmsg)
			}
		}
	}
}

// sweepLoop 定期处理未确认消息
func (c *Consumer) sweepLoop(ctx context.Context) error {
	interval := c.cfg.Backoff.Initial
	if interval > c.cfg.ClaimInterval {
		interval = c.cfg.ClaimInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastReclaim := time.Time{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			includeOthers := now.Sub(lastReclaim) >= c.cfg.ClaimInterval
			if includeOthers {
				lastReclaim = now
			}
			c.sweepPending(ctx, includeOthers)
		}
	}
}

// pendingAction 未确认消息的处理方式
type pendingAction int

const (
	actionSkip pendingAction = iota
	actionRetry
	actionDeadLetter
)

// decide 本消费者的消息按退避重试，其他消费者的消息空闲足够久才接管
func (c *Consumer) decide(p redis.XPendingExt, includeOthers bool) (pendingAction, time.Duration) {
	own := p.Consumer == c.consumerName
	if !own && (!includeOthers || p.Idle < c.reclaimIdle) {
		return actionSkip, 0
	}

	minIdle := c.reclaimIdle
	if own {
		minIdle = c.cfg.Backoff.CalculateBackoff(int(p.RetryCount))
	}
	if int(p.RetryCount) >= c.cfg.RetryLimit {
		if own {
			minIdle = 0
		}
		return actionDeadLetter, minIdle
	}
	if p.Idle < minIdle {
		return actionSkip, 0
	}
	return actionRetry, minIdle
}

func (c *Consumer) sweepPending(ctx context.Context, includeOthers bool) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  string(c.group),
		Start:  "-",
		End:    "+",
		Count:  pendingPageSize,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			logger.Warn(ctx, "failed to query pending messages", "stream", string(c.stream), "error", err.Error())
		}
		return
	}

	for _, p := range pending {
		action, minIdle := c.decide(p, includeOthers)
		if action == actionSkip {
			continue
		}

		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   string(c.stream),
			Group:    string(c.group),
			Consumer: c.consumerName,
			MinIdle:  minIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			logger.Warn(ctx, "failed to claim pending message", "message_id", p.ID, "error", err.Error())
			continue
		}

		for _, xmsg := range claimed {
			if action == actionRetry {
				c.processMessage(ctx, xmsg)
				continue
			}
			if msg, err := decode(xmsg); err == nil {
				c.deadLetter(ctx, xmsg.ID, msg, errors.New("message exceeded max retries"))
			}
			c.ack(ctx, xmsg.ID)
		}
	}
}

// decode 解析 data 字段
func decode(xmsg redis.XMessage) (*Message, error) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("message %s has no data field", xmsg.ID)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", xmsg.ID, err)
	}
	return &msg, nil
}

// processMessage 处理单条消息，无法解析或无处理器的消息直接确认
func (c *Consumer) processMessage(ctx context.Context, xmsg redis.XMessage) {
	ctx, span := tracer.Start(ctx, "consumer.processMessage",
		trace.WithAttributes(
			attribute.String("stream", string(c.stream)),
			attribute.String("stream.message_id", xmsg.ID),
		))
	defer span.End()

	msg, err := decode(xmsg)
	if err != nil {
		logger.Warn(ctx, "dropping undecodable message", "message_id", xmsg.ID, "error", err.Error())
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "invalid").Inc()
		c.ack(ctx, xmsg.ID)
		return
	}

	if reqID := msg.GetMetadata("request_id"); reqID != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, reqID)
	}
	if traceID := msg.GetMetadata("trace_id"); traceID != "" {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, traceID)
	}
	span.SetAttributes(attribute.String("message.id", msg.ID), attribute.String("message.type", msg.Type))

	c.mu.RLock()
	handler, ok := c.handlers[msg.Type]
	c.mu.RUnlock()
	if !ok {
		logger.Warn(ctx, "no handler for message type", "type", msg.Type)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "skipped").Inc()
		c.ack(ctx, xmsg.ID)
		return
	}

	if err := handler(ctx, msg); err != nil {
		span.RecordError(err)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "failed").Inc()

		deliveries := c.deliveryCount(ctx, xmsg.ID)
		if deliveries >= c.cfg.RetryLimit {
			logger.Warn(ctx, "message moved to DLQ after max retries", "message_id", msg.ID, "deliveries", deliveries, "error", err.Error())
			c.deadLetter(ctx, xmsg.ID, msg, err)
			c.ack(ctx, xmsg.ID)
			return
		}
		logger.Warn(ctx, "handler failed, message left pending for retry", "message_id", msg.ID, "deliveries", deliveries, "error", err.Error())
		return
	}

	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "ok").Inc()
	c.ack(ctx, xmsg.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, string(c.stream), string(c.group), id).Err(); err != nil {
		logger.Warn(ctx, "failed to ack message", "message_id", id, "error", err.Error())
	}
}

// deliveryCount XPENDING 中记录的投递次数
func (c *Consumer) deliveryCount(ctx context.Context, id string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  string(c.group),
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return int(pending[0].RetryCount)
}

func (c *Consumer) deadLetter(ctx context.Context, streamID string, msg *Message, cause error) {
	data, err := json.Marshal(DeadLetter{
		OriginalStream: string(c.stream),
		StreamID:       streamID,
		Message:        msg,
		Error:          cause.Error(),
		FailedAt:       time.Now().Unix(),
	})
	if err != nil {
		logger.Error(ctx, "failed to encode dead letter", err, "message_id", msg.ID)
		return
	}
	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream.DLQStream(),
		Values: map[string]interface{}{"data": string(data)},
	}).Err(); err != nil {
		logger.Error(ctx, "failed to write DLQ", err, "message_id", msg.ID)
		return
	}
	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "dead_lettered").Inc()
}

func (c *Consumer) monitorDLQ(ctx context.Context) error {
	ticker := time.NewTicker(dlqCheckInterval)
	defer ticker.Stop()

	dlq := c.stream.DLQStream()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := c.client.XLen(ctx, dlq).Result()
			if err != nil {
				continue
			}
			if n > c.cfg.DLQAlertThreshold {
				logger.Warn(ctx, "DLQ has pending messages", "stream", dlq, "count", n)
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
