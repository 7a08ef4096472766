package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"cinemind/internal/domain/entity"
	"cinemind/internal/interfaces/http/dto"
)

// MovieFinder 影片详情查询
type MovieFinder interface {
	Get(ctx context.Context, movieID string) (*entity.MovieDetail, error)
}

// MovieHandler 影片处理器
type MovieHandler struct {
	movies MovieFinder
}

// NewMovieHandler 创建影片处理器
func NewMovieHandler(movies MovieFinder) *MovieHandler {
	return &MovieHandler{movies: movies}
}

// GetMovie 影片详情
// @Summary 影片详情
// @Description 返回影片元数据及各数据源已入库的文档数
// @Tags Movies
// @Produce json
// @Param movie_id path string true "影片 ID"
// @Success 200 {object} dto.Response[dto.MovieResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/movies/{movie_id} [get]
func (h *MovieHandler) GetMovie(c *gin.Context) {
	movie, err := h.movies.Get(c.Request.Context(), c.Param("movie_id"))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToMovieResponse(movie))
}
