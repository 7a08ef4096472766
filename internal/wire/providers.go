// Package wire 组装应用依赖
package wire

import (
	"context"
	"fmt"
	"io"

	goredis "github.com/redis/go-redis/v9"

	"cinemind/internal/application/answer"
	"cinemind/internal/application/ingestion"
	"cinemind/internal/application/retrieval"
	"cinemind/internal/application/sentiment"
	"cinemind/internal/config"
	"cinemind/internal/domain/entity"
	"cinemind/internal/domain/repository"
	infraembedding "cinemind/internal/infrastructure/embedding"
	"cinemind/internal/infrastructure/llm"
	"cinemind/internal/infrastructure/messaging"
	"cinemind/internal/infrastructure/persistence/memory"
	"cinemind/internal/infrastructure/persistence/milvus"
	"cinemind/internal/infrastructure/persistence/pgvector"
	"cinemind/internal/infrastructure/persistence/postgres"
	"cinemind/internal/infrastructure/persistence/redis"
	sentimentclient "cinemind/internal/infrastructure/sentiment"
	"cinemind/internal/infrastructure/source"
	"cinemind/internal/interfaces/http/handler"
	"cinemind/pkg/logger"
)

func noop() {}

// ProvidePostgresClient 提供 PostgreSQL 客户端；未启用时返回 nil
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	if !cfg.Database.Postgres.Enabled {
		return nil, noop, nil
	}
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端；未启用时返回 nil
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, noop, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideVectorIndex 按 vector.driver 提供向量索引，并返回对应的就绪检查
func ProvideVectorIndex(ctx context.Context, cfg *config.Config) (repository.VectorIndex, handler.Dependency, func(), error) {
	dim := cfg.Embedding.Dimension
	dep := handler.Dependency{Name: "vector_index", Required: true}

	switch cfg.Vector.Driver {
	case "milvus":
		client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			return nil, dep, nil, err
		}
		index := milvus.NewIndex(client, dim)
		if err := index.EnsureCollection(ctx); err != nil {
			client.Close()
			return nil, dep, nil, err
		}
		dep.Check = client.HealthCheck
		return index, dep, func() { client.Close() }, nil

	case "pgvector":
		store, err := pgvector.NewStore(ctx, cfg.Database.Postgres, cfg.Vector.PGVector, dim)
		if err != nil {
			return nil, dep, nil, err
		}
		if err := store.Init(ctx); err != nil {
			store.Close()
			return nil, dep, nil, err
		}
		dep.Check = store.HealthCheck
		return store, dep, func() { store.Close() }, nil

	case "memory":
		logger.Warn(ctx, "using in-memory vector index, documents are lost on restart")
		dep.Check = func(context.Context) error { return nil }
		return memory.NewIndex(), dep, noop, nil
	}
	return nil, dep, nil, fmt.Errorf("unsupported vector driver %q", cfg.Vector.Driver)
}

// ProvideEmbeddingGateway 提供 Embedding 网关；cache 为 nil 时查询向量不缓存
func ProvideEmbeddingGateway(ctx context.Context, cfg *config.Config, cache *redis.Cache) (*infraembedding.Gateway, error) {
	backend, err := infraembedding.NewBackend(ctx, &cfg.Embedding)
	if err != nil {
		return nil, err
	}
	opts := infraembedding.GatewayOptions{
		Model:             cfg.Embedding.Model,
		BatchSize:         cfg.Embedding.BatchSize,
		Timeout:           cfg.Embedding.Timeout,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Retry:             cfg.Embedding.Retry.Policy(),
		CacheTTL:          cfg.Cache.QueryEmbeddingTTL,
	}
	if cache != nil {
		opts.Cache = cache
	}
	return infraembedding.NewGateway(backend, opts), nil
}

// ProvidePublisher 提供入库事件发布者；messaging.driver 为 none 时返回 nil
func ProvidePublisher(cfg *config.Config, rdb *redis.Client) (messaging.Publisher, func(), error) {
	var raw *goredis.Client
	if rdb != nil {
		raw = rdb.Redis()
	}
	publisher, err := messaging.NewPublisher(cfg.Messaging, raw)
	if err != nil {
		return nil, nil, err
	}
	if publisher == nil {
		return nil, noop, nil
	}
	cleanup := noop
	if c, ok := publisher.(io.Closer); ok {
		cleanup = func() { c.Close() }
	}
	return publisher, cleanup, nil
}

// ProvideSourceAdapters 提供已配置路径的数据源适配器
func ProvideSourceAdapters(cfg *config.Config) []ingestion.SourceAdapter {
	var adapters []ingestion.SourceAdapter
	if dir := cfg.Sources.ScreenplayDir; dir != "" {
		adapters = append(adapters, source.NewScreenplayDir(dir))
	}
	if path := cfg.Sources.ReviewFile; path != "" {
		adapters = append(adapters, source.NewReviewFile(path))
	}
	if path := cfg.Sources.CatalogFile; path != "" {
		adapters = append(adapters, source.NewCatalogFile(path))
	}
	return adapters
}

// ProvideIngestionRunner 提供入库调度器
func ProvideIngestionRunner(cfg *config.Config, embedder ingestion.Embedder, index repository.VectorIndex, recorders []ingestion.RunRecorder) *ingestion.Runner {
	in := cfg.Ingestion
	normalizer := ingestion.NewNormalizer(ingestion.NewSplitter(in.ChunkSize, in.ChunkOverlap, in.MinChunkSize))
	coordinator := ingestion.NewCoordinator(normalizer, embedder, index,
		ingestion.Options{BatchSize: in.BatchSize, Workers: in.Workers},
		recorders...,
	)
	return ingestion.NewRunner(coordinator, in.Timeout, ProvideSourceAdapters(cfg)...)
}

// ProvidePlanner 提供检索规划器
func ProvidePlanner(cfg *config.Config, embedder retrieval.QueryEmbedder, index repository.VectorIndex) *retrieval.Planner {
	weights := make(map[entity.SourceType]float64, len(cfg.Retrieval.SourceWeights))
	for name, w := range cfg.Retrieval.SourceWeights {
		st, err := entity.ParseSourceType(name)
		if err != nil {
			logger.Warn(context.Background(), "ignoring weight for unknown source type", "source_type", name)
			continue
		}
		weights[st] = w
	}
	return retrieval.NewPlanner(embedder, index, retrieval.Options{
		DefaultTopK:   cfg.Retrieval.DefaultTopK,
		MaxTopK:       cfg.Retrieval.MaxTopK,
		SourceWeights: weights,
	})
}

// ProvideSentimentEnricher 提供情感标注器；未启用时返回 nil
func ProvideSentimentEnricher(cfg *config.Config) (*sentiment.Enricher, *sentimentclient.Client, error) {
	if !cfg.Sentiment.Enabled {
		return nil, nil, nil
	}
	client, err := sentimentclient.NewClient(cfg.Sentiment)
	if err != nil {
		return nil, nil, err
	}
	return sentiment.NewEnricher(client, cfg.Sentiment.MaxConcurrency), client, nil
}

// ProvideGenerator 提供回答生成器
func ProvideGenerator(ctx context.Context, cfg *config.Config) (*llm.Generator, error) {
	factory := llm.NewEinoFactory(&cfg.LLM)
	name, providerCfg, err := factory.Resolve(cfg.Answer.Provider)
	if err != nil {
		return nil, err
	}
	chatModel, err := factory.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return llm.NewGenerator(chatModel, llm.GeneratorOptions{
		Provider: name,
		Model:    providerCfg.Model,
		Timeout:  providerCfg.Timeout,
		Retry:    cfg.LLM.Retry.Policy(),
	}), nil
}

// ProvideComposer 提供回答组装器
func ProvideComposer(cfg *config.Config, generator answer.TextGenerator) *answer.Composer {
	return answer.NewComposer(generator, answer.Options{
		MaxContextTokens: cfg.Answer.MaxContextTokens,
		Counter:          answer.NewTokenCounter(cfg.Answer.TokenEncoding),
	})
}
