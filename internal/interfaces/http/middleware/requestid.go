package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"cinemind/pkg/logger"
)

// RequestIDHeader 请求 ID 头
const RequestIDHeader = "X-Request-ID"

// RequestID 透传或生成请求 ID，并写入日志 context
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), logger.RequestIDKey, requestID))
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}
