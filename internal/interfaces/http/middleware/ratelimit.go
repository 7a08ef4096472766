package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cinemind/internal/config"
	"cinemind/internal/interfaces/http/dto"
	"cinemind/pkg/errors"
	"cinemind/pkg/logger"
)

// RateLimiter 固定窗口限流器
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// RateLimit 按客户端 IP 与路由限流；限流器故障时放行
func RateLimit(cfg config.RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 60
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}

	return func(c *gin.Context) {
		key := c.ClientIP() + ":" + c.FullPath()
		allowed, remaining, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable, allowing request", "error", err.Error())
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Code:    http.StatusTooManyRequests,
				Message: "rate limit exceeded",
				Error:   &dto.ErrorDetail{ErrorCode: string(errors.CodeTooManyRequests)},
				TraceID: c.GetString("trace_id"),
			})
			return
		}
		c.Next()
	}
}
