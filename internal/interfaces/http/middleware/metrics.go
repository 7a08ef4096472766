package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cinemind/pkg/metrics"
)

// Metrics Prometheus 指标采集中间件；未匹配路由统一记为 unmatched
func Metrics(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		path := c.FullPath()
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}
		if path == "" {
			path = "unmatched"
		}
		start := time.Now()
		method := c.Request.Method
		if c.Request.ContentLength > 0 {
			metrics.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(c.Request.ContentLength))
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size > 0 {
			metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
