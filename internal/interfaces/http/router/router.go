// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cinemind/internal/config"
	"cinemind/internal/interfaces/http/handler"
	"cinemind/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Query     *handler.QueryHandler
	Ingestion *handler.IngestionHandler
	Movie     *handler.MovieHandler
	Health    *handler.HealthHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	limiter  middleware.RateLimiter
}

// New 创建路由器；limiter 为 nil 时不限流
func New(cfg *config.Config, handlers Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}
	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) metricsPath() string {
	if p := r.cfg.Observability.Metrics.Path; p != "" {
		return p
	}
	return "/metrics"
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.CORS(r.cfg.Security.CORS))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics(r.metricsPath()))
	}
}

func (r *Router) setupRoutes() {
	if h := r.handlers.Health; h != nil {
		r.engine.GET("/health", h.Health)
		r.engine.GET("/ready", h.Ready)
		r.engine.GET("/live", h.Live)
	}
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.metricsPath(), gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/api/v1")
	if h := r.handlers.Query; h != nil {
		v1.POST("/query", middleware.RateLimit(r.cfg.Security.RateLimit, r.limiter), h.Query)
	}
	if h := r.handlers.Ingestion; h != nil {
		v1.POST("/ingest", h.Ingest)
		runs := v1.Group("/ingestion/runs")
		{
			runs.GET("", h.ListRuns)
			runs.GET("/:id", h.GetRun)
		}
	}
	if h := r.handlers.Movie; h != nil {
		v1.GET("/movies/:movie_id", h.GetMovie)
	}
}
