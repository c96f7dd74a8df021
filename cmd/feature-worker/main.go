// Package main 特征刷新消费者入口（feature-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"hybrid-ranking-api/internal/application/feature"
	"hybrid-ranking-api/internal/config"
	"hybrid-ranking-api/internal/infrastructure/messaging"
	"hybrid-ranking-api/internal/infrastructure/persistence/redis"
	"hybrid-ranking-api/internal/wire"
	"hybrid-ranking-api/pkg/logger"
	"hybrid-ranking-api/pkg/tracer"

	"github.com/joho/godotenv"
)

// dlqAlertThreshold 死信队列告警阈值
const dlqAlertThreshold = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "feature-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	features, err := wire.ProvideFeatureRegistry(cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to build feature registry", err)
	}
	h := &refreshHandler{invalidator: feature.NewInvalidator(features, redis.NewCache(redisClient))}

	consumer := messaging.NewConsumer(redisClient.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamFeatureRefresh,
		Group:         messaging.ConsumerGroupFeatureWorker,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  cfg.Messaging.RedisStream.BlockTimeout,
		ClaimInterval: cfg.Messaging.RedisStream.ClaimInterval,
		RetryLimit:    cfg.Messaging.RedisStream.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    cfg.Messaging.RedisStream.RetryBackoff.Initial,
			Max:        cfg.Messaging.RedisStream.RetryBackoff.Max,
			Multiplier: cfg.Messaging.RedisStream.RetryBackoff.Multiplier,
		},
		DLQAlertThreshold: dlqAlertThreshold,
	})
	for _, msgType := range messaging.RefreshTypes() {
		consumer.RegisterHandler(msgType, h.Handle)
	}

	logger.Info(ctx, "feature-worker started", "stream", string(messaging.StreamFeatureRefresh))
	if err := consumer.Run(ctx); err != nil {
		logger.Fatal(ctx, "consumer exited", err)
	}
	logger.Info(ctx, "feature-worker shut down")
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
