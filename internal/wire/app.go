package wire

import (
	"context"

	"cinemind/internal/application/ingestion"
	"cinemind/internal/application/movie"
	"cinemind/internal/application/rag"
	"cinemind/internal/config"
	"cinemind/internal/domain/repository"
	"cinemind/internal/infrastructure/messaging"
	"cinemind/internal/infrastructure/persistence/postgres"
	"cinemind/internal/infrastructure/persistence/redis"
	"cinemind/internal/interfaces/http/handler"
	"cinemind/internal/interfaces/http/middleware"
	"cinemind/internal/interfaces/http/router"
	"cinemind/pkg/logger"
)

// App 应用依赖容器
type App struct {
	Config   *config.Config
	Index    repository.VectorIndex
	Runs     repository.IngestionRunRepository
	Runner   *ingestion.Runner
	Pipeline *rag.Pipeline
	Movies   *movie.Service
	Router   *router.Router
}

// cleanups 按创建的逆序释放资源
type cleanups []func()

func (c *cleanups) add(f func()) {
	if f != nil {
		*c = append(*c, f)
	}
}

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// InitializeApp 初始化整个应用（带路由器）
//
// 返回的 cleanup 释放所有已打开的连接；出错时已打开的连接会先被释放。
func InitializeApp(ctx context.Context, cfg *config.Config) (app *App, cleanup func(), err error) {
	var cs cleanups
	defer func() {
		if err != nil {
			cs.run()
		}
	}()

	index, indexDep, closeIndex, err := ProvideVectorIndex(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cs.add(closeIndex)
	deps := []handler.Dependency{indexDep}

	redisClient, closeRedis, err := ProvideRedisClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	cs.add(closeRedis)

	var (
		cache   *redis.Cache
		limiter middleware.RateLimiter
	)
	if redisClient != nil {
		cache = redis.NewCache(redisClient)
		limiter = redis.NewRateLimiter(redisClient)
		deps = append(deps, handler.Dependency{Name: "redis", Check: redisClient.HealthCheck})
	}

	pgClient, closePG, err := ProvidePostgresClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	cs.add(closePG)

	var (
		recorders []ingestion.RunRecorder
		runs      repository.IngestionRunRepository
	)
	if pgClient != nil {
		repo := postgres.NewIngestionRunRepository(pgClient)
		recorders = append(recorders, repo)
		runs = repo
		deps = append(deps, handler.Dependency{Name: "postgres", Check: pgClient.HealthCheck})
	}

	publisher, closePublisher, err := ProvidePublisher(cfg, redisClient)
	if err != nil {
		return nil, nil, err
	}
	cs.add(closePublisher)
	if publisher != nil {
		recorders = append(recorders, messaging.NewEventRecorder(publisher))
		logger.Info(ctx, "ingestion events enabled", "driver", publisher.Driver())
	}

	gateway, err := ProvideEmbeddingGateway(ctx, cfg, cache)
	if err != nil {
		return nil, nil, err
	}

	runner := ProvideIngestionRunner(cfg, gateway, index, recorders)
	planner := ProvidePlanner(cfg, gateway, index)

	enricher, sentimentClient, err := ProvideSentimentEnricher(cfg)
	if err != nil {
		return nil, nil, err
	}
	var ragEnricher rag.Enricher
	if enricher != nil {
		ragEnricher = enricher
		deps = append(deps, handler.Dependency{Name: "sentiment", Check: sentimentClient.HealthCheck})
	}

	generator, err := ProvideGenerator(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	composer := ProvideComposer(cfg, generator)
	pipeline := rag.NewPipeline(planner, ragEnricher, composer, cfg.Query.Timeout)
	movies := movie.NewService(index)

	r := router.New(cfg, router.Handlers{
		Query:     handler.NewQueryHandler(pipeline),
		Ingestion: handler.NewIngestionHandler(runner, runs),
		Movie:     handler.NewMovieHandler(movies),
		Health:    handler.NewHealthHandler(cfg.App.Version, deps...),
	}, limiter)

	app = &App{
		Config:   cfg,
		Index:    index,
		Runs:     runs,
		Runner:   runner,
		Pipeline: pipeline,
		Movies:   movies,
		Router:   r,
	}
	return app, cs.run, nil
}
