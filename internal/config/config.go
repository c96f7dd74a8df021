// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	Search        SearchConfig        `yaml:"search" mapstructure:"search"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
	Retrieval     RetrievalConfig     `yaml:"retrieval" mapstructure:"retrieval"`
	Breaker       BreakerConfig       `yaml:"breaker" mapstructure:"breaker"`
	Features      FeaturesConfig      `yaml:"features" mapstructure:"features"`
	Ranking       RankingConfig       `yaml:"ranking" mapstructure:"ranking"`
	ColdStart     ColdStartConfig     `yaml:"coldstart" mapstructure:"coldstart"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	// TextSearchConfig 全文检索使用的 regconfig，例如 english / simple
	TextSearchConfig string `yaml:"text_search_config" mapstructure:"text_search_config"`
	LogLevel         string `yaml:"log_level" mapstructure:"log_level"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// VectorConfig 向量数据库配置
type VectorConfig struct {
	Milvus MilvusConfig `yaml:"milvus" mapstructure:"milvus"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Enabled            bool   `yaml:"enabled" mapstructure:"enabled"`
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	CollectionPrefix   string `yaml:"collection_prefix" mapstructure:"collection_prefix"`
	HNSWM              int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
	SearchEf           int    `yaml:"search_ef" mapstructure:"search_ef"`
	EmbeddingDim       int    `yaml:"embedding_dim" mapstructure:"embedding_dim"`
	FactorDim          int    `yaml:"factor_dim" mapstructure:"factor_dim"`
}

// SearchConfig 外部全文检索引擎配置
type SearchConfig struct {
	Meilisearch MeilisearchConfig `yaml:"meilisearch" mapstructure:"meilisearch"`
}

// MeilisearchConfig Meilisearch 配置
type MeilisearchConfig struct {
	Host   string `yaml:"host" mapstructure:"host"`
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	Index  string `yaml:"index" mapstructure:"index"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Provider string `yaml:"provider" mapstructure:"provider"`
	Model    string `yaml:"model" mapstructure:"model"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen        int           `yaml:"max_len" mapstructure:"max_len"`
	BlockTimeout  time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit    int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff  BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// RetrievalConfig 召回配置
type RetrievalConfig struct {
	// LexicalBackend 全文检索后端：postgres 或 meilisearch
	LexicalBackend   string            `yaml:"lexical_backend" mapstructure:"lexical_backend"`
	RequestTimeout   time.Duration     `yaml:"request_timeout" mapstructure:"request_timeout"`
	Timeouts         AdapterTimeouts   `yaml:"timeouts" mapstructure:"timeouts"`
	DefaultK         int               `yaml:"default_k" mapstructure:"default_k"`
	MaxK             int               `yaml:"max_k" mapstructure:"max_k"`
	CandidateFactor  int               `yaml:"candidate_factor" mapstructure:"candidate_factor"`
	Abbreviations    map[string]string `yaml:"abbreviations" mapstructure:"abbreviations"`
	Synonyms         SynonymConfig     `yaml:"synonyms" mapstructure:"synonyms"`
	Spell            SpellConfig       `yaml:"spell" mapstructure:"spell"`
	PopularCacheTTL  time.Duration     `yaml:"popular_cache_ttl" mapstructure:"popular_cache_ttl"`
	ResponseCacheTTL time.Duration     `yaml:"response_cache_ttl" mapstructure:"response_cache_ttl"`
}

// SynonymConfig 同义词展开配置，File 中的词条与 Terms 合并
type SynonymConfig struct {
	Enabled    bool                `yaml:"enabled" mapstructure:"enabled"`
	MaxPerTerm int                 `yaml:"max_per_term" mapstructure:"max_per_term"`
	Boost      float64             `yaml:"boost" mapstructure:"boost"`
	File       string              `yaml:"file" mapstructure:"file"`
	Terms      map[string][]string `yaml:"terms" mapstructure:"terms"`
}

// SpellConfig 拼写纠错配置，词典由商品目录与 ExtraTerms 构成
type SpellConfig struct {
	Enabled             bool     `yaml:"enabled" mapstructure:"enabled"`
	MaxEditDistance     int      `yaml:"max_edit_distance" mapstructure:"max_edit_distance"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	ExtraTerms          []string `yaml:"extra_terms" mapstructure:"extra_terms"`
	// VocabularyLimit 从商品目录加载的最多商品数
	VocabularyLimit int `yaml:"vocabulary_limit" mapstructure:"vocabulary_limit"`
}

// AdapterTimeouts 各召回源超时
type AdapterTimeouts struct {
	Lexical    time.Duration `yaml:"lexical" mapstructure:"lexical"`
	Semantic   time.Duration `yaml:"semantic" mapstructure:"semantic"`
	CF         time.Duration `yaml:"cf" mapstructure:"cf"`
	Popularity time.Duration `yaml:"popularity" mapstructure:"popularity"`
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	Window         time.Duration `yaml:"window" mapstructure:"window"`
	Cooldown       time.Duration `yaml:"cooldown" mapstructure:"cooldown"`
	FailureRatio   float64       `yaml:"failure_ratio" mapstructure:"failure_ratio"`
	MinRequests    uint32        `yaml:"min_requests" mapstructure:"min_requests"`
	HalfOpenRatio  float64       `yaml:"half_open_ratio" mapstructure:"half_open_ratio"`
	HalfOpenTrials uint32        `yaml:"half_open_trials" mapstructure:"half_open_trials"`
}

// FeaturesConfig 特征解析配置
type FeaturesConfig struct {
	CacheTimeout time.Duration  `yaml:"cache_timeout" mapstructure:"cache_timeout"`
	StoreTimeout time.Duration  `yaml:"store_timeout" mapstructure:"store_timeout"`
	StaleGrace   time.Duration  `yaml:"stale_grace" mapstructure:"stale_grace"`
	NegativeTTL  time.Duration  `yaml:"negative_ttl" mapstructure:"negative_ttl"`
	HistoryLimit int            `yaml:"history_limit" mapstructure:"history_limit"`
	Versions     map[string]int `yaml:"versions" mapstructure:"versions"`
}

// RankingConfig 排序配置
type RankingConfig struct {
	Weights           WeightsConfig `yaml:"weights" mapstructure:"weights"`
	FreshnessHalfLife time.Duration `yaml:"freshness_half_life" mapstructure:"freshness_half_life"`
	MaxCandidates     int           `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// WeightsConfig 排序权重
type WeightsConfig struct {
	Search     float64 `yaml:"search" mapstructure:"search"`
	CF         float64 `yaml:"cf" mapstructure:"cf"`
	Popularity float64 `yaml:"popularity" mapstructure:"popularity"`
	Freshness  float64 `yaml:"freshness" mapstructure:"freshness"`
}

// ColdStartConfig 冷启动策略配置
type ColdStartConfig struct {
	MinInteractions        int     `yaml:"min_interactions" mapstructure:"min_interactions"`
	ColdCFWeight           float64 `yaml:"cold_cf_weight" mapstructure:"cold_cf_weight"`
	WarmCFWeight           float64 `yaml:"warm_cf_weight" mapstructure:"warm_cf_weight"`
	NewProductViews        int     `yaml:"new_product_views" mapstructure:"new_product_views"`
	NewProductPopularFloor float64 `yaml:"new_product_popularity_floor" mapstructure:"new_product_popularity_floor"`
}
