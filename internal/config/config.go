// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"time"

	"cinemind/pkg/resilience"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	Sentiment     SentimentConfig     `yaml:"sentiment" mapstructure:"sentiment"`
	Ingestion     IngestionConfig     `yaml:"ingestion" mapstructure:"ingestion"`
	Retrieval     RetrievalConfig     `yaml:"retrieval" mapstructure:"retrieval"`
	Answer        AnswerConfig        `yaml:"answer" mapstructure:"answer"`
	Query         QueryConfig         `yaml:"query" mapstructure:"query"`
	Sources       SourcesConfig       `yaml:"sources" mapstructure:"sources"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
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

// PostgresConfig PostgreSQL 配置（入库运行记录）
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
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
	AutoMigrate     bool          `yaml:"auto_migrate" mapstructure:"auto_migrate"`
}

// DSN 返回 key=value 形式的连接串
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL 返回 postgres:// 形式的连接串（pgxpool 使用）
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis             RedisConfig   `yaml:"redis" mapstructure:"redis"`
	QueryEmbeddingTTL time.Duration `yaml:"query_embedding_ttl" mapstructure:"query_embedding_ttl"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	KeyPrefix    string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// VectorConfig 向量索引配置
type VectorConfig struct {
	// Driver 取值 milvus / pgvector / memory
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	Milvus   MilvusConfig   `yaml:"milvus" mapstructure:"milvus"`
	PGVector PGVectorConfig `yaml:"pgvector" mapstructure:"pgvector"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	CollectionPrefix   string `yaml:"collection_prefix" mapstructure:"collection_prefix"`
	Collection         string `yaml:"collection" mapstructure:"collection"`
	HNSWM              int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
	SearchEf           int    `yaml:"search_ef" mapstructure:"search_ef"`
}

// PGVectorConfig pgvector 表配置，连接信息复用 database.postgres
type PGVectorConfig struct {
	Table    string `yaml:"table" mapstructure:"table"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	Retry           RetryConfig               `yaml:"retry" mapstructure:"retry"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	// Provider 取值 openai / http
	Provider          string        `yaml:"provider" mapstructure:"provider"`
	Model             string        `yaml:"model" mapstructure:"model"`
	APIKey            string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	Endpoint          string        `yaml:"endpoint" mapstructure:"endpoint"`
	Dimension         int           `yaml:"dimension" mapstructure:"dimension"`
	BatchSize         int           `yaml:"batch_size" mapstructure:"batch_size"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Retry             RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// SentimentConfig 情感打分服务配置
type SentimentConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxConcurrency int           `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	Retry          RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// IngestionConfig 入库配置
type IngestionConfig struct {
	ChunkSize    int `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
	MinChunkSize int `yaml:"min_chunk_size" mapstructure:"min_chunk_size"`
	BatchSize    int `yaml:"batch_size" mapstructure:"batch_size"`
	Workers      int `yaml:"workers" mapstructure:"workers"`

	// Timeout 后台运行的最长时长，<= 0 不限制
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	DefaultTopK   int                `yaml:"default_top_k" mapstructure:"default_top_k"`
	MaxTopK       int                `yaml:"max_top_k" mapstructure:"max_top_k"`
	SourceWeights map[string]float64 `yaml:"source_weights" mapstructure:"source_weights"`
}

// AnswerConfig 回答组装配置
type AnswerConfig struct {
	MaxContextTokens int    `yaml:"max_context_tokens" mapstructure:"max_context_tokens"`
	TokenEncoding    string `yaml:"token_encoding" mapstructure:"token_encoding"`
	Provider         string `yaml:"provider" mapstructure:"provider"`
}

// QueryConfig 查询链路配置
type QueryConfig struct {
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SourcesConfig 本地文件数据源配置
type SourcesConfig struct {
	ScreenplayDir string `yaml:"screenplay_dir" mapstructure:"screenplay_dir"`
	ReviewFile    string `yaml:"review_file" mapstructure:"review_file"`
	CatalogFile   string `yaml:"catalog_file" mapstructure:"catalog_file"`
}

// MessagingConfig 入库事件发布配置
type MessagingConfig struct {
	// Driver 取值 redis / kafka / none
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
	Kafka       KafkaConfig       `yaml:"kafka" mapstructure:"kafka"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	Stream string `yaml:"stream" mapstructure:"stream"`
	MaxLen int64  `yaml:"max_len" mapstructure:"max_len"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" mapstructure:"brokers"`
	Topic        string        `yaml:"topic" mapstructure:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// RetryConfig 重试配置
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	Jitter      float64       `yaml:"jitter" mapstructure:"jitter"`
}

// Policy 转换为共享重试策略
func (r RetryConfig) Policy() resilience.Policy {
	return resilience.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
		Multiplier:  2.0,
		Jitter:      r.Jitter,
	}
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

// RateLimitConfig 限流配置（/query 接口，按客户端 IP）
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Limit   int           `yaml:"limit" mapstructure:"limit"`
	Window  time.Duration `yaml:"window" mapstructure:"window"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// Validate 校验配置之间的约束
func (c *Config) Validate() error {
	in := c.Ingestion
	if in.ChunkSize <= 0 {
		return fmt.Errorf("ingestion.chunk_size must be positive")
	}
	if in.ChunkOverlap < 0 || in.ChunkOverlap >= in.ChunkSize {
		return fmt.Errorf("ingestion.chunk_overlap must be in [0, chunk_size)")
	}
	if in.MinChunkSize < 0 || in.MinChunkSize > in.ChunkSize {
		return fmt.Errorf("ingestion.min_chunk_size must be in [0, chunk_size]")
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 100 {
		return fmt.Errorf("embedding.batch_size must be in [1, 100]")
	}
	r := c.Retrieval
	if r.DefaultTopK <= 0 || r.MaxTopK <= 0 || r.DefaultTopK > r.MaxTopK {
		return fmt.Errorf("retrieval.default_top_k must be in [1, max_top_k]")
	}
	for source, w := range r.SourceWeights {
		if w <= 0 {
			return fmt.Errorf("retrieval.source_weights.%s must be positive", source)
		}
	}
	switch c.Vector.Driver {
	case "milvus", "pgvector", "memory":
	default:
		return fmt.Errorf("vector.driver %q is not supported", c.Vector.Driver)
	}
	switch c.Messaging.Driver {
	case "redis", "kafka", "none", "":
	default:
		return fmt.Errorf("messaging.driver %q is not supported", c.Messaging.Driver)
	}
	if c.Sentiment.Enabled && c.Sentiment.MaxConcurrency <= 0 {
		return fmt.Errorf("sentiment.max_concurrency must be positive")
	}
	return nil
}
