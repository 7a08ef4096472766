// Package rag 查询链路：检索 → 情感标注 → 回答生成
package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"cinemind/internal/domain/entity"
	apperrors "cinemind/pkg/errors"
	"cinemind/pkg/logger"
	"cinemind/pkg/metrics"
	pkgtracer "cinemind/pkg/tracer"
)

var tracer = otel.Tracer("rag")

const DefaultTimeout = 90 * time.Second

// Retriever 检索
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, filter entity.Filter) (*entity.RetrievalResult, error)
}

// Enricher 情感标注，从不失败
type Enricher interface {
	Enrich(ctx context.Context, result *entity.RetrievalResult) *entity.RetrievalResult
}

// Composer 回答组装
type Composer interface {
	Compose(ctx context.Context, result *entity.RetrievalResult) (*entity.Answer, error)
}

// Query 调用方请求
type Query struct {
	Text   string
	TopK   int
	Filter entity.Filter
	// Title 非空时限定影片标题
	Title string
}

// Pipeline 查询链路
type Pipeline struct {
	retriever Retriever
	enricher  Enricher
	composer  Composer
	timeout   time.Duration
}

// NewPipeline 创建查询链路；enricher 可为 nil
func NewPipeline(retriever Retriever, enricher Enricher, composer Composer, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Pipeline{
		retriever: retriever,
		enricher:  enricher,
		composer:  composer,
		timeout:   timeout,
	}
}

// Ask 回答一次查询，失败时返回带阶段信息的 AppError
func (p *Pipeline) Ask(ctx context.Context, q Query) (*entity.Answer, *entity.RetrievalResult, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "rag.Pipeline.Ask", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	outcome := "answered"
	defer func() {
		metrics.QueryTotal.WithLabelValues(outcome).Inc()
		metrics.QueryDuration.Observe(time.Since(start).Seconds())
	}()

	filter := q.Filter
	if title := strings.TrimSpace(q.Title); title != "" {
		merged := make(entity.Filter, len(filter)+1)
		for k, v := range filter {
			merged[k] = v
		}
		merged["title"] = title
		filter = merged
	}

	result, err := p.retriever.Retrieve(ctx, q.Text, q.TopK, filter)
	if err != nil {
		outcome = "retrieval_error"
		if apperrors.HasCode(err, apperrors.CodeInvalidParam) {
			outcome = "invalid"
		}
		return nil, nil, p.fail(ctx, span, &outcome, err)
	}

	if p.enricher != nil && !result.Empty() {
		result = p.enricher.Enrich(ctx, result)
	}

	answer, err := p.composer.Compose(ctx, result)
	if err != nil {
		outcome = "generation_error"
		return nil, result, p.fail(ctx, span, &outcome, err)
	}
	if result.Empty() {
		outcome = "empty"
	}

	logger.Info(ctx, "query answered",
		"retrieved", len(result.Retrieved),
		"annotated", len(result.SentimentByDocument),
		"citations", len(answer.Citations),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return answer, result, nil
}

// fail 超时统一转换为 CodeTimeout，其余错误原样返回
func (p *Pipeline) fail(ctx context.Context, span trace.Span, outcome *string, err error) error {
	pkgtracer.RecordError(span, err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		*outcome = "timeout"
		stage := ""
		if appErr := apperrors.AsAppError(err); appErr != nil {
			stage = appErr.Detail
		}
		err = apperrors.Wrap(err, apperrors.CodeTimeout, "query timed out").WithDetail(stage)
	}
	logger.Warn(ctx, "query failed", "outcome", *outcome, "error", err.Error())
	return err
}
