//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"hybrid-ranking-api/internal/config"
	"hybrid-ranking-api/internal/infrastructure/persistence/postgres"
	"hybrid-ranking-api/internal/interfaces/http/router"
)

// InitializeDataLayer 初始化数据层（bootstrap 使用）
func InitializeDataLayer(ctx context.Context, cfg *config.Config) (*DataLayer, func(), error) {
	wire.Build(
		PostgresSet,
		MilvusSet,
		ProvideSearchClientOptional,
		ProvideEmbedderOptional,
		wire.Struct(new(DataLayer), "*"),
	)
	return nil, nil, nil
}

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		PostgresSet,
		RedisSet,
		MilvusSet,
		ProvideSearchClientOptional,
		ProvideEmbedderOptional,
		RankingSet,
		RouterSet,
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewProductRepository,
	postgres.NewUserRepository,
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
)

// MilvusSet 可选 Milvus（不可达时不阻塞启动）
var MilvusSet = wire.NewSet(
	ProvideMilvusClientOptional,
	ProvideMilvusRepositoryOptional,
)

// RankingSet 召回、特征与排序
var RankingSet = wire.NewSet(
	ProvideBreakerRegistry,
	ProvideFanOut,
	ProvideFeatureRegistry,
	ProvideResolver,
	ProvideQueryEnhancer,
	ProvideRankingService,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideRankingHandler,
	ProvideHealthHandler,
	ProvideRouter,
)
