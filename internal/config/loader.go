// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Load 加载配置文件
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
func Load() (*Config, error) {
	return LoadFrom("configs")
}

// LoadFrom 从指定目录加载配置
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 加载默认配置
	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), false); err != nil {
		return nil, err
	}

	// 2. 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 3. 绑定环境变量 (直接覆盖)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值 (兜底)
	setDefaults(v)

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// 执行环境变量替换
	expanded := expandEnv(string(content))

	// 加载到 viper
	reader := strings.NewReader(expanded)
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		// 手动标记已加载文件，防止后续 ReadInConfig 报错
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

// envPattern 匹配 ${VAR} 或 ${VAR:default}
// g1: 变量名, g2: 默认值部分（含冒号）, g3: 默认值内容
var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// expandEnv 替换字符串中的 ${VAR:default} 占位符
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envPattern.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		val, ok := os.LookupEnv(key)
		if ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		return match // 保留原样以便识别未定义的变量
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 应用默认值
	v.SetDefault("app.name", "hybrid-ranking-api")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器默认值
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "5s")
	v.SetDefault("server.http.write_timeout", "10s")
	v.SetDefault("server.http.idle_timeout", "120s")
	v.SetDefault("server.http.shutdown_timeout", "15s")

	// 数据库默认值
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.database", "hybrid_ranking")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 50)
	v.SetDefault("database.postgres.max_idle_conns", 10)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")
	v.SetDefault("database.postgres.text_search_config", "english")
	v.SetDefault("database.postgres.log_level", "warn")

	// Redis 默认值
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 100)
	v.SetDefault("cache.redis.min_idle_conns", 10)
	v.SetDefault("cache.redis.dial_timeout", "2s")
	v.SetDefault("cache.redis.read_timeout", "200ms")
	v.SetDefault("cache.redis.write_timeout", "200ms")

	// Milvus 默认值
	v.SetDefault("vector.milvus.enabled", true)
	v.SetDefault("vector.milvus.host", "localhost")
	v.SetDefault("vector.milvus.port", 19530)
	v.SetDefault("vector.milvus.collection_prefix", "hybrid_rank")
	v.SetDefault("vector.milvus.hnsw_m", 16)
	v.SetDefault("vector.milvus.hnsw_ef_construction", 200)
	v.SetDefault("vector.milvus.search_ef", 64)
	v.SetDefault("vector.milvus.embedding_dim", 384)
	v.SetDefault("vector.milvus.factor_dim", 64)

	// Meilisearch 默认值
	v.SetDefault("search.meilisearch.host", "http://localhost:7700")
	v.SetDefault("search.meilisearch.index", "products")

	// Embedding 默认值
	v.SetDefault("embedding.enabled", true)
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")

	// 消息队列默认值
	v.SetDefault("messaging.redis_stream.max_len", 10000)
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.claim_interval", "30s")
	v.SetDefault("messaging.redis_stream.retry_limit", 3)
	v.SetDefault("messaging.redis_stream.retry_backoff.initial", "1s")
	v.SetDefault("messaging.redis_stream.retry_backoff.max", "1m")
	v.SetDefault("messaging.redis_stream.retry_backoff.multiplier", 2.0)

	// 可观测性默认值
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	// 安全默认值
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.requests_per_second", 100)

	// 召回默认值
	v.SetDefault("retrieval.lexical_backend", "postgres")
	v.SetDefault("retrieval.request_timeout", "400ms")
	v.SetDefault("retrieval.timeouts.lexical", "100ms")
	v.SetDefault("retrieval.timeouts.semantic", "150ms")
	v.SetDefault("retrieval.timeouts.cf", "100ms")
	v.SetDefault("retrieval.timeouts.popularity", "50ms")
	v.SetDefault("retrieval.default_k", 10)
	v.SetDefault("retrieval.max_k", 100)
	v.SetDefault("retrieval.candidate_factor", 2)
	v.SetDefault("retrieval.popular_cache_ttl", "5m")
	v.SetDefault("retrieval.response_cache_ttl", "30s")
	v.SetDefault("retrieval.synonyms.enabled", true)
	v.SetDefault("retrieval.synonyms.max_per_term", 5)
	v.SetDefault("retrieval.synonyms.boost", 0.8)
	v.SetDefault("retrieval.spell.enabled", true)
	v.SetDefault("retrieval.spell.max_edit_distance", 2)
	v.SetDefault("retrieval.spell.confidence_threshold", 0.8)
	v.SetDefault("retrieval.spell.vocabulary_limit", 50000)

	// 熔断器默认值
	v.SetDefault("breaker.window", "1m")
	v.SetDefault("breaker.cooldown", "30s")
	v.SetDefault("breaker.failure_ratio", 0.5)
	v.SetDefault("breaker.min_requests", 10)
	v.SetDefault("breaker.half_open_ratio", 0.1)
	v.SetDefault("breaker.half_open_trials", 1)

	// 特征默认值
	v.SetDefault("features.cache_timeout", "30ms")
	v.SetDefault("features.store_timeout", "100ms")
	v.SetDefault("features.stale_grace", "24h")
	v.SetDefault("features.negative_ttl", "1m")
	v.SetDefault("features.history_limit", 20)

	// 排序默认值
	v.SetDefault("ranking.weights.search", 0.4)
	v.SetDefault("ranking.weights.cf", 0.3)
	v.SetDefault("ranking.weights.popularity", 0.2)
	v.SetDefault("ranking.weights.freshness", 0.1)
	v.SetDefault("ranking.freshness_half_life", "2160h")
	v.SetDefault("ranking.max_candidates", 200)

	// 冷启动默认值
	v.SetDefault("coldstart.min_interactions", 5)
	v.SetDefault("coldstart.cold_cf_weight", 0.3)
	v.SetDefault("coldstart.warm_cf_weight", 0.7)
	v.SetDefault("coldstart.new_product_views", 10)
	v.SetDefault("coldstart.new_product_popularity_floor", 0.1)
}
