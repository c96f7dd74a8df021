// Package main 特征刷新通知发布工具，离线任务完成后调用
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"hybrid-ranking-api/internal/application/feature"
	"hybrid-ranking-api/internal/config"
	"hybrid-ranking-api/internal/infrastructure/messaging"
	"hybrid-ranking-api/internal/infrastructure/persistence/redis"
	"hybrid-ranking-api/internal/wire"
	"hybrid-ranking-api/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	job := flag.String("job", "", "refresh job: "+strings.Join(feature.Jobs(), ", "))
	ids := flag.String("ids", "", "comma separated entity ids, empty means full refresh")
	flag.Parse()

	if _, ok := feature.FeaturesForJob(*job); !ok {
		fmt.Fprintf(os.Stderr, "unknown job %q, expected one of: %s\n", *job, strings.Join(feature.Jobs(), ", "))
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	redisClient, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Fatal(ctx, "failed to init redis", err)
	}
	defer func() { _ = redisClient.Close() }()

	producer := wire.ProvideMessagingProducer(redisClient, cfg)
	refresh := &messaging.FeatureRefreshMessage{
		Type:      *job + "_refreshed",
		EntityIDs: splitIDs(*ids),
		Job:       *job,
	}
	id, err := producer.PublishFeatureRefresh(ctx, refresh)
	if err != nil {
		logger.Fatal(ctx, "failed to publish feature refresh", err)
	}

	logger.Info(ctx, "feature refresh published",
		"job", *job,
		"entity_count", len(refresh.EntityIDs),
		"stream_id", id,
	)
}

func splitIDs(raw string) []string {
	var out []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
