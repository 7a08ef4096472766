package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"cinemind/internal/application/ingestion"
	"cinemind/internal/domain/entity"
	"cinemind/internal/domain/repository"
	"cinemind/internal/interfaces/http/dto"
	"cinemind/pkg/errors"
	"cinemind/pkg/logger"
)

// IngestionStarter 后台入库调度
type IngestionStarter interface {
	Resolve(source string) ([]entity.SourceType, error)
	Start(ctx context.Context, req ingestion.Request) error
}

// IngestionHandler 入库处理器
type IngestionHandler struct {
	starter IngestionStarter
	runs    repository.IngestionRunRepository
}

// NewIngestionHandler 创建入库处理器；runs 为 nil 时运行记录接口返回 503
func NewIngestionHandler(starter IngestionStarter, runs repository.IngestionRunRepository) *IngestionHandler {
	return &IngestionHandler{starter: starter, runs: runs}
}

// Ingest 触发入库
// @Summary 触发入库
// @Tags Ingestion
// @Accept json
// @Produce json
// @Param body body dto.IngestRequest true "数据源"
// @Success 202 {object} dto.Response[dto.IngestAccepted]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/ingest [post]
func (h *IngestionHandler) Ingest(c *gin.Context) {
	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body", err.Error())
		return
	}
	sources, err := h.starter.Resolve(req.Source)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := h.starter.Start(ctx, ingestion.Request{Sources: sources, Limit: req.Limit}); err != nil {
		dto.FromError(c, err)
		return
	}

	names := make([]string, len(sources))
	for i, st := range sources {
		names[i] = string(st)
	}
	logger.Info(ctx, "ingestion started", "sources", names, "limit", req.Limit)
	dto.Accepted(c, dto.IngestAccepted{Status: "started", Sources: names})
}

// ListRuns 最近的入库运行记录
// @Summary 入库运行记录
// @Tags Ingestion
// @Produce json
// @Param source_type query string false "数据源类型"
// @Param limit query int false "条数"
// @Success 200 {object} dto.Response[[]dto.IngestionRunResponse]
// @Router /api/v1/ingestion/runs [get]
func (h *IngestionHandler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		dto.FromError(c, errors.New(errors.CodeServiceUnavailable, "ingestion ledger is not configured"))
		return
	}
	var req dto.ListRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		dto.BadRequest(c, "invalid query parameters", err.Error())
		return
	}
	ctx := c.Request.Context()
	runs, err := h.runs.List(ctx, repository.IngestionRunFilter{
		SourceType: entity.SourceType(req.SourceType),
		Limit:      req.Limit,
	})
	if err != nil {
		logger.Error(ctx, "failed to list ingestion runs", err)
		dto.FromError(c, errors.Wrap(err, errors.CodeDatabaseError, "failed to list ingestion runs"))
		return
	}
	dto.Success(c, dto.ToIngestionRunList(runs))
}

// GetRun 单条运行记录
// @Summary 入库运行记录详情
// @Tags Ingestion
// @Produce json
// @Param id path string true "运行 ID"
// @Success 200 {object} dto.Response[dto.IngestionRunResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/ingestion/runs/{id} [get]
func (h *IngestionHandler) GetRun(c *gin.Context) {
	if h.runs == nil {
		dto.FromError(c, errors.New(errors.CodeServiceUnavailable, "ingestion ledger is not configured"))
		return
	}
	ctx := c.Request.Context()
	run, err := h.runs.GetByID(ctx, c.Param("id"))
	if err != nil {
		logger.Error(ctx, "failed to get ingestion run", err)
		dto.FromError(c, errors.Wrap(err, errors.CodeDatabaseError, "failed to get ingestion run"))
		return
	}
	if run == nil {
		dto.FromError(c, errors.New(errors.CodeNotFound, "ingestion run not found"))
		return
	}
	dto.Success(c, dto.ToIngestionRunResponse(run))
}
