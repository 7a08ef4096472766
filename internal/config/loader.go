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

// DefaultDir 默认配置目录
const DefaultDir = "configs"

var placeholderRe = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 加载配置文件
// 按优先级加载：默认值 -> config.yaml -> config.<APP_ENV>.yaml -> 环境变量
func Load() (*Config, error) {
	dir := os.Getenv("CINEMIND_CONFIG_DIR")
	if dir == "" {
		dir = DefaultDir
	}
	return LoadFrom(dir)
}

// LoadFrom 从指定目录加载配置；目录中缺少 config.yaml 时仅使用默认值
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), true); err != nil {
		return nil, err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 绑定环境变量 (直接覆盖)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
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

	reader := strings.NewReader(expandEnv(string(content)))
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		v.SetConfigFile(path)
		return nil
	}
	if err := v.MergeConfig(reader); err != nil {
		return fmt.Errorf("failed to merge processed config %s: %w", path, err)
	}
	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符，未定义且无默认值时保留原样
func expandEnv(s string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		sub := placeholderRe.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(sub[1]); ok {
			return val
		}
		if sub[2] != "" {
			return sub[3]
		}
		return match
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
	v.SetDefault("app.name", "cinemind")
	v.SetDefault("app.version", "v0.1.0")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "120s")
	v.SetDefault("server.http.idle_timeout", "120s")
	v.SetDefault("server.http.shutdown_timeout", "30s")

	v.SetDefault("database.postgres.enabled", false)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.database", "cinemind")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 20)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")
	v.SetDefault("database.postgres.auto_migrate", true)

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 20)
	v.SetDefault("cache.redis.min_idle_conns", 2)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")
	v.SetDefault("cache.redis.key_prefix", "cinemind:")
	v.SetDefault("cache.query_embedding_ttl", "24h")

	v.SetDefault("vector.driver", "milvus")
	v.SetDefault("vector.milvus.host", "localhost")
	v.SetDefault("vector.milvus.port", 19530)
	v.SetDefault("vector.milvus.collection_prefix", "cinemind")
	v.SetDefault("vector.milvus.collection", "documents")
	v.SetDefault("vector.milvus.hnsw_m", 16)
	v.SetDefault("vector.milvus.hnsw_ef_construction", 200)
	v.SetDefault("vector.milvus.search_ef", 128)
	v.SetDefault("vector.pgvector.table", "cinemind_documents")
	v.SetDefault("vector.pgvector.max_conns", 10)

	v.SetDefault("llm.default_provider", "openai")
	v.SetDefault("llm.providers.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.providers.openai.max_tokens", 1024)
	v.SetDefault("llm.providers.openai.temperature", 0.0)
	v.SetDefault("llm.providers.openai.timeout", "60s")
	v.SetDefault("llm.retry.max_attempts", 2)
	v.SetDefault("llm.retry.base_delay", "500ms")
	v.SetDefault("llm.retry.max_delay", "4s")
	v.SetDefault("llm.retry.jitter", 0.2)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.requests_per_second", 0)
	v.SetDefault("embedding.retry.max_attempts", 3)
	v.SetDefault("embedding.retry.base_delay", "200ms")
	v.SetDefault("embedding.retry.max_delay", "5s")
	v.SetDefault("embedding.retry.jitter", 0.2)

	v.SetDefault("sentiment.enabled", true)
	v.SetDefault("sentiment.base_url", "http://localhost:8001")
	v.SetDefault("sentiment.timeout", "3s")
	v.SetDefault("sentiment.max_concurrency", 4)
	v.SetDefault("sentiment.retry.max_attempts", 2)
	v.SetDefault("sentiment.retry.base_delay", "100ms")
	v.SetDefault("sentiment.retry.max_delay", "1s")
	v.SetDefault("sentiment.retry.jitter", 0.2)

	v.SetDefault("ingestion.chunk_size", 1000)
	v.SetDefault("ingestion.chunk_overlap", 200)
	v.SetDefault("ingestion.min_chunk_size", 200)
	v.SetDefault("ingestion.batch_size", 32)
	v.SetDefault("ingestion.workers", 4)
	v.SetDefault("ingestion.timeout", "30m")

	v.SetDefault("retrieval.default_top_k", 5)
	v.SetDefault("retrieval.max_top_k", 20)

	v.SetDefault("answer.max_context_tokens", 3000)
	v.SetDefault("answer.token_encoding", "cl100k_base")

	v.SetDefault("query.timeout", "90s")

	v.SetDefault("sources.screenplay_dir", "data/screenplays")
	v.SetDefault("sources.review_file", "data/reviews.jsonl")
	v.SetDefault("sources.catalog_file", "data/catalog.yaml")

	v.SetDefault("messaging.driver", "none")
	v.SetDefault("messaging.redis_stream.stream", "cinemind:ingestion")
	v.SetDefault("messaging.redis_stream.max_len", 10000)
	v.SetDefault("messaging.kafka.topic", "cinemind.ingestion")
	v.SetDefault("messaging.kafka.write_timeout", "10s")

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	v.SetDefault("security.rate_limit.enabled", false)
	v.SetDefault("security.rate_limit.limit", 60)
	v.SetDefault("security.rate_limit.window", "1m")
}
