// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"cinemind/internal/application/rag"
	"cinemind/internal/domain/entity"
	"cinemind/internal/interfaces/http/dto"
	"cinemind/pkg/logger"
)

// Asker 问答链路
type Asker interface {
	Ask(ctx context.Context, q rag.Query) (*entity.Answer, *entity.RetrievalResult, error)
}

// QueryHandler 问答处理器
type QueryHandler struct {
	asker Asker
}

// NewQueryHandler 创建问答处理器
func NewQueryHandler(asker Asker) *QueryHandler {
	return &QueryHandler{asker: asker}
}

// Query 基于影片资料回答问题
// @Summary 问答
// @Description 检索剧本、影评与影片目录并生成带引用的回答
// @Tags Query
// @Accept json
// @Produce json
// @Param body body dto.QueryRequest true "问答请求"
// @Success 200 {object} dto.Response[dto.QueryResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Failure 504 {object} dto.ErrorResponse
// @Router /api/v1/query [post]
func (h *QueryHandler) Query(c *gin.Context) {
	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body", err.Error())
		return
	}
	for k, v := range req.Filter {
		switch v.(type) {
		case string, float64, bool:
		default:
			dto.BadRequest(c, "invalid filter", "filter."+k+" must be a scalar")
			return
		}
	}

	ctx := c.Request.Context()
	answer, result, err := h.asker.Ask(ctx, rag.Query{
		Text:   req.Question,
		TopK:   req.TopK,
		Filter: entity.Filter(req.Filter),
		Title:  req.Title,
	})
	if err != nil {
		logger.Warn(ctx, "query request failed", "error", err.Error())
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToQueryResponse(answer, result))
}
