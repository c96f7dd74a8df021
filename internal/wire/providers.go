// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"time"

	"hybrid-ranking-api/internal/application/feature"
	"hybrid-ranking-api/internal/application/ranking"
	"hybrid-ranking-api/internal/application/retrieval"
	"hybrid-ranking-api/internal/config"
	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
	"hybrid-ranking-api/internal/infrastructure/breaker"
	"hybrid-ranking-api/internal/infrastructure/embedding"
	"hybrid-ranking-api/internal/infrastructure/messaging"
	"hybrid-ranking-api/internal/infrastructure/persistence/milvus"
	"hybrid-ranking-api/internal/infrastructure/persistence/postgres"
	"hybrid-ranking-api/internal/infrastructure/persistence/redis"
	"hybrid-ranking-api/internal/infrastructure/search"
	"hybrid-ranking-api/internal/interfaces/http/handler"
	"hybrid-ranking-api/internal/interfaces/http/router"
	"hybrid-ranking-api/pkg/logger"
)

// LexicalBackendMeilisearch 使用 Meilisearch 作为全文检索后端
const LexicalBackendMeilisearch = "meilisearch"

// DataLayer 数据层依赖容器（bootstrap 使用）
type DataLayer struct {
	PgClient    *postgres.Client
	TxManager   *postgres.TxManager
	ProductRepo *postgres.ProductRepository
	UserRepo    *postgres.UserRepository

	// 以下依赖未启用时为空
	MilvusRepo *milvus.Repository
	Search     *search.Client
	Embedder   *embedding.Client
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	return messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
}

// ProvideMilvusClientOptional 未启用或不可达时返回空，语义与 CF 召回降级
func ProvideMilvusClientOptional(ctx context.Context, cfg *config.Config) (*milvus.Client, func(), error) {
	if !cfg.Vector.Milvus.Enabled {
		return nil, func() {}, nil
	}
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus not available, vector retrieval disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMilvusRepositoryOptional 提供 Milvus 仓储
func ProvideMilvusRepositoryOptional(client *milvus.Client) *milvus.Repository {
	if client == nil {
		return nil
	}
	return milvus.NewRepository(client)
}

// ProvideSearchClientOptional 仅在 lexical_backend 为 meilisearch 时创建
func ProvideSearchClientOptional(cfg *config.Config) (*search.Client, error) {
	if cfg.Retrieval.LexicalBackend != LexicalBackendMeilisearch {
		return nil, nil
	}
	return search.NewClient(&cfg.Search.Meilisearch)
}

// ProvideEmbedderOptional 未启用或创建失败时返回空，禁用查询向量化
func ProvideEmbedderOptional(ctx context.Context, cfg *config.Config) *embedding.Client {
	if !cfg.Embedding.Enabled {
		return nil
	}
	embedder, err := embedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, query embedding disabled", "error", err.Error())
		return nil
	}
	return embedding.NewClient(embedder)
}

// ProvideBreakerRegistry 提供熔断器注册表
func ProvideBreakerRegistry(cfg *config.Config) *breaker.Registry {
	return breaker.NewRegistry(cfg.Breaker)
}

// ProvideFanOut 组装召回源
//
// 热门榜单同时作为搜索模式的兜底源。
func ProvideFanOut(
	cfg *config.Config,
	products *postgres.ProductRepository,
	redisClient *redis.Client,
	milvusRepo *milvus.Repository,
	searchClient *search.Client,
	embedder *embedding.Client,
	registry *breaker.Registry,
) *retrieval.FanOut {
	var lexicalIndex repository.LexicalIndex = products
	if searchClient != nil {
		lexicalIndex = searchClient
	}

	// 接口值保持 nil，召回源据此判断未配置
	var vectorIndex repository.VectorIndex
	var factorIndex repository.FactorIndex
	if milvusRepo != nil {
		vectorIndex = milvus.NewProductVectorIndex(milvusRepo)
		factorIndex = milvus.NewItemFactorIndex(milvusRepo)
	}
	var queryEmbedder repository.Embedder
	if embedder != nil {
		queryEmbedder = embedder
	}

	popular := redis.NewPopularCache(redis.NewCache(redisClient), products, cfg.Retrieval.PopularCacheTTL)
	popularity := retrieval.NewPopularityAdapter(popular)

	t := cfg.Retrieval.Timeouts
	return retrieval.NewFanOut([]retrieval.Adapter{
		retrieval.NewLexicalAdapter(lexicalIndex),
		retrieval.NewSemanticAdapter(vectorIndex, queryEmbedder),
		retrieval.NewCFAdapter(factorIndex),
		popularity,
	}, popularity, registry, map[entity.Source]time.Duration{
		entity.SourceLexical:    t.Lexical,
		entity.SourceSemantic:   t.Semantic,
		entity.SourceCF:         t.CF,
		entity.SourcePopularity: t.Popularity,
	})
}

// ProvideFeatureRegistry 提供内置特征注册表
func ProvideFeatureRegistry(cfg *config.Config) (*feature.Registry, error) {
	return feature.NewBuiltinRegistry(ranking.FreshnessWithHalfLife(cfg.Ranking.FreshnessHalfLife), cfg.Features.Versions)
}

// ProvideResolver 提供特征解析器，Redis 为快速层，PostgreSQL 为后备存储
func ProvideResolver(cfg *config.Config, features *feature.Registry, pgClient *postgres.Client, redisClient *redis.Client, registry *breaker.Registry) *feature.Resolver {
	store := postgres.NewFeatureStore(pgClient, cfg.Features.HistoryLimit)
	cb := breaker.Register[map[string]entity.FeatureValue](registry, "feature_store")
	return feature.NewResolver(features, redis.NewFeatureCache(redisClient), store, cb, cfg.Features)
}

// vocabularyLoadTimeout 启动时加载纠错词典的上限，超时只用内置常用词
const vocabularyLoadTimeout = 5 * time.Second

// SynonymDictionary 合并配置中的同义词与词典文件，文件读取失败时只用配置中的词条
func SynonymDictionary(ctx context.Context, cfg *config.Config) map[string][]string {
	sc := cfg.Retrieval.Synonyms
	if !sc.Enabled {
		return nil
	}
	dict := make(map[string][]string, len(sc.Terms))
	for k, v := range sc.Terms {
		dict[k] = append(dict[k], v...)
	}
	if sc.File != "" {
		fromFile, err := retrieval.LoadSynonymFile(sc.File)
		if err != nil {
			logger.Warn(ctx, "synonym dictionary not loaded", "path", sc.File, "error", err.Error())
		}
		for k, v := range fromFile {
			dict[k] = append(dict[k], v...)
		}
	}
	return retrieval.NormalizeSynonyms(dict)
}

// ProvideQueryEnhancer 提供查询增强器，纠错词典取自商品目录
func ProvideQueryEnhancer(ctx context.Context, cfg *config.Config, products *postgres.ProductRepository) *retrieval.QueryEnhancer {
	rc := cfg.Retrieval
	normalizer := retrieval.NewQueryNormalizer(rc.Abbreviations)

	var speller *retrieval.SpellCorrector
	if rc.Spell.Enabled {
		loadCtx, cancel := context.WithTimeout(ctx, vocabularyLoadTimeout)
		vocabulary, err := products.Vocabulary(loadCtx, rc.Spell.VocabularyLimit)
		cancel()
		if err != nil {
			logger.Warn(ctx, "catalog vocabulary not loaded, spell correction uses common terms only", "error", err.Error())
		}
		speller = retrieval.NewSpellCorrector(append(vocabulary, rc.Spell.ExtraTerms...), rc.Spell.MaxEditDistance, rc.Spell.ConfidenceThreshold)
	}

	var synonyms *retrieval.SynonymExpander
	if dict := SynonymDictionary(ctx, cfg); len(dict) > 0 {
		synonyms = retrieval.NewSynonymExpander(dict, rc.Synonyms.MaxPerTerm, rc.Synonyms.Boost)
	}

	logger.Info(ctx, "query enhancement ready",
		"spell_words", speller.Size(),
		"synonym_terms", synonyms.Size(),
	)
	return retrieval.NewQueryEnhancer(normalizer, speller, synonyms)
}

// ProvideRankingService 提供排序服务
func ProvideRankingService(cfg *config.Config, fanout *retrieval.FanOut, resolver *feature.Resolver, enhancer *retrieval.QueryEnhancer, redisClient *redis.Client) (*ranking.Service, error) {
	responses := redis.NewResponseCache(redis.NewCache(redisClient))
	opts := ranking.OptionsFromConfig(cfg)
	opts.Enhancer = enhancer
	return ranking.NewService(fanout, resolver, responses, opts)
}

// ProvideRankingHandler 提供搜索与推荐处理器
func ProvideRankingHandler(cfg *config.Config, svc *ranking.Service) *handler.RankingHandler {
	return handler.NewRankingHandler(svc, cfg.Retrieval.DefaultK)
}

// ProvideHealthHandler 提供健康检查处理器
func ProvideHealthHandler(
	cfg *config.Config,
	pgClient *postgres.Client,
	redisClient *redis.Client,
	milvusClient *milvus.Client,
	searchClient *search.Client,
	registry *breaker.Registry,
) *handler.HealthHandler {
	deps := handler.HealthDeps{
		Version:  cfg.App.Version,
		Postgres: pgClient,
		Redis:    redisClient,
		Breakers: registry,
	}
	if milvusClient != nil {
		deps.Milvus = milvusClient
	}
	if searchClient != nil {
		deps.Meilisearch = searchClient
	}
	return handler.NewHealthHandler(deps)
}

// ProvideRouter 提供 HTTP 路由器
func ProvideRouter(cfg *config.Config, rankingHandler *handler.RankingHandler, healthHandler *handler.HealthHandler, redisClient *redis.Client) *router.Router {
	return router.New(cfg, router.Deps{
		Ranking:     rankingHandler,
		Health:      healthHandler,
		RateLimiter: redis.NewRateLimiter(redisClient),
	})
}
