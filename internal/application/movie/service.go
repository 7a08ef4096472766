// Package movie 按 movie_id 聚合已入库的影片资料
package movie

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cinemind/internal/domain/entity"
	"cinemind/internal/domain/repository"
	apperrors "cinemind/pkg/errors"
	pkgtracer "cinemind/pkg/tracer"
)

var tracer = otel.Tracer("movie")

// preference 代表文档的数据源优先级：目录元数据最完整
var preference = []entity.SourceType{entity.SourceCatalog, entity.SourceScreenplay, entity.SourceReview}

// Service 影片详情查询
type Service struct {
	index repository.VectorIndex
}

// NewService 创建影片详情查询
func NewService(index repository.VectorIndex) *Service {
	return &Service{index: index}
}

// Get 返回影片详情与各数据源的文档数；元数据取自优先级最高的数据源中最新的一块
//
// 索引中没有该 movie_id 的文档时返回 CodeNotFound。
func (s *Service) Get(ctx context.Context, movieID string) (*entity.MovieDetail, error) {
	movieID = strings.TrimSpace(movieID)
	if movieID == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "movie_id must not be empty")
	}
	ctx, span := tracer.Start(ctx, "movie.Service.Get",
		trace.WithAttributes(attribute.String("movie.id", movieID)))
	defer span.End()

	detail := &entity.MovieDetail{
		MovieID:      movieID,
		Genres:       []string{},
		SourceCounts: make(map[entity.SourceType]int64, len(preference)),
	}
	found := false
	for _, st := range preference {
		filter := entity.Filter{"movie_id": movieID, "source_type": string(st)}
		n, err := s.index.CountWhere(ctx, filter)
		if err != nil {
			pkgtracer.RecordError(span, err)
			return nil, apperrors.Wrap(err, apperrors.CodeIndexUnavailable, "movie source count failed")
		}
		if n == 0 {
			continue
		}
		detail.SourceCounts[st] = n
		detail.SourceCount += n
		if found {
			continue
		}
		docs, err := s.index.Find(ctx, filter, 1)
		if err != nil {
			pkgtracer.RecordError(span, err)
			return nil, apperrors.Wrap(err, apperrors.CodeIndexUnavailable, "movie lookup failed")
		}
		if len(docs) > 0 {
			fill(detail, docs[0].Metadata)
			found = true
		}
	}
	if !found {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "movie %s not found", movieID)
	}

	span.SetAttributes(attribute.Int64("movie.source_count", detail.SourceCount))
	return detail, nil
}

func fill(detail *entity.MovieDetail, meta entity.Metadata) {
	detail.Title = meta.Title
	detail.ReleaseYear = meta.ReleaseYear()
	c := meta.Catalog
	if c == nil {
		return
	}
	detail.Director = c.Director
	detail.CatalogRating = c.CatalogRating
	detail.RuntimeMinutes = c.RuntimeMinutes
	detail.PosterURL = c.PosterURL
	for _, g := range strings.Split(c.Genres, ",") {
		if g = strings.TrimSpace(g); g != "" {
			detail.Genres = append(detail.Genres, g)
		}
	}
}
