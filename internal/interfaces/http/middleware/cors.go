package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"cinemind/internal/config"
)

// CORS 跨域中间件，未配置时使用宽松默认值
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "OPTIONS"}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Origin", "Content-Type", RequestIDHeader}
	}
	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  methods,
		AllowHeaders:  headers,
		ExposeHeaders: []string{RequestIDHeader, "X-Trace-ID", "X-RateLimit-Remaining"},
		// 通配来源不能携带凭证
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           12 * time.Hour,
	})
}
