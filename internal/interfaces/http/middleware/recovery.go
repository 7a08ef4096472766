// Package middleware 提供 HTTP 中间件
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"cinemind/internal/interfaces/http/dto"
	"cinemind/pkg/errors"
	"cinemind/pkg/logger"
)

// Recovery Panic 恢复中间件
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					fmt.Errorf("%v", rec),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
					Code:    http.StatusInternalServerError,
					Message: "internal server error",
					Error:   &dto.ErrorDetail{ErrorCode: string(errors.CodeInternalError)},
					TraceID: c.GetString("trace_id"),
				})
			}
		}()
		c.Next()
	}
}
