// Package retrieval 查询向量化与相似度检索
package retrieval

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cinemind/internal/domain/entity"
	"cinemind/internal/domain/repository"
	apperrors "cinemind/pkg/errors"
	"cinemind/pkg/logger"
	pkgtracer "cinemind/pkg/tracer"
)

var tracer = otel.Tracer("retrieval")

const (
	DefaultTopK = 5
	MaxTopK     = 20
)

// QueryEmbedder 查询向量化
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Options 检索参数
type Options struct {
	DefaultTopK int
	MaxTopK     int
	// SourceWeights 按数据源类型对分数加权后重新排序，为空时不加权
	SourceWeights map[entity.SourceType]float64
}

// Planner 检索规划器
type Planner struct {
	embedder    QueryEmbedder
	index       repository.VectorIndex
	defaultTopK int
	maxTopK     int
	weights     map[entity.SourceType]float64
}

// NewPlanner 创建检索规划器
func NewPlanner(embedder QueryEmbedder, index repository.VectorIndex, opts Options) *Planner {
	maxK := opts.MaxTopK
	if maxK <= 0 {
		maxK = MaxTopK
	}
	defK := opts.DefaultTopK
	if defK <= 0 || defK > maxK {
		defK = min(DefaultTopK, maxK)
	}
	return &Planner{
		embedder:    embedder,
		index:       index,
		defaultTopK: defK,
		maxTopK:     maxK,
		weights:     opts.SourceWeights,
	}
}

// Retrieve 向量化查询并返回最相似的 topK 篇文档
//
// topK <= 0 时使用默认值，超过上限时截断。索引为空时返回空结果而非错误。
func (p *Planner) Retrieve(ctx context.Context, query string, topK int, filter entity.Filter) (*entity.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "query must not be empty")
	}
	topK = p.clampTopK(topK)

	ctx, span := tracer.Start(ctx, "retrieval.Planner.Retrieve",
		trace.WithAttributes(
			attribute.Int("retrieval.top_k", topK),
			attribute.Int("retrieval.filters", len(filter)),
		))
	defer span.End()

	vec, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		pkgtracer.RecordError(span, err)
		return nil, apperrors.Wrap(err, apperrors.CodeRetrievalUnavailable, "query embedding failed").WithDetail("embed")
	}

	// 加权会改变排序，先取上限数量的候选再截断
	candidates := topK
	if len(p.weights) > 0 {
		candidates = max(topK, p.maxTopK)
	}
	hits, err := p.index.Search(ctx, vec, candidates, filter)
	if err != nil {
		pkgtracer.RecordError(span, err)
		return nil, apperrors.Wrap(err, apperrors.CodeRetrievalUnavailable, "vector search failed").WithDetail("search")
	}
	if len(p.weights) > 0 {
		hits = p.reweight(hits)
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	span.SetAttributes(attribute.Int("retrieval.hits", len(hits)))
	logger.Debug(ctx, "retrieval completed", "top_k", topK, "hits", len(hits))
	return entity.NewRetrievalResult(query, hits), nil
}

// RetrieveForMovie 限定影片标题的检索
func (p *Planner) RetrieveForMovie(ctx context.Context, title, query string, topK int) (*entity.RetrievalResult, error) {
	return p.Retrieve(ctx, query, topK, entity.Filter{"title": title})
}

func (p *Planner) clampTopK(topK int) int {
	if topK <= 0 {
		return p.defaultTopK
	}
	return min(topK, p.maxTopK)
}

func (p *Planner) reweight(hits []entity.ScoredDocument) []entity.ScoredDocument {
	out := make([]entity.ScoredDocument, len(hits))
	for i, h := range hits {
		if w, ok := p.weights[h.Document.SourceType]; ok {
			h.Score *= w
		}
		out[i] = h
	}
	sort.SliceStable(out, func(i, j int) bool { return entity.Less(out[i], out[j]) })
	return out
}
