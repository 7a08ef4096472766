package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Dependency 就绪检查依赖项；Required 为 false 时失败只标记 degraded
type Dependency struct {
	Name     string
	Required bool
	Check    func(ctx context.Context) error
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version string
	deps    []Dependency
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(version string, deps ...Dependency) *HealthHandler {
	return &HealthHandler{version: version, deps: deps}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health 健康检查接口
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: h.version})
}

// Ready 就绪检查接口：必需依赖全部可用时返回 200
// @Summary 就绪检查
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	ready := true
	checks := make(map[string]*readinessCheck, len(h.deps))
	for _, dep := range h.deps {
		start := time.Now()
		err := dep.Check(ctx)
		check := &readinessCheck{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
		if err != nil {
			check.Error = err.Error()
			check.Status = "degraded"
			if dep.Required {
				check.Status = "error"
				ready = false
			}
		}
		checks[dep.Name] = check
	}

	resp := readinessResponse{Status: "ok", Checks: checks}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
