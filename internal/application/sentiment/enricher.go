// Package sentiment 检索结果的情感标注（尽力而为）
package sentiment

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"cinemind/internal/domain/entity"
	"cinemind/pkg/logger"
)

var tracer = otel.Tracer("sentiment")

const DefaultMaxConcurrency = 4

// Analyzer 远程情感打分
type Analyzer interface {
	Analyze(ctx context.Context, text string) (entity.Sentiment, error)
}

// Enricher 情感标注器
type Enricher struct {
	analyzer Analyzer
	sem      *semaphore.Weighted
}

// NewEnricher 创建情感标注器，maxConcurrency 限制同时在途的远程调用数
func NewEnricher(analyzer Analyzer, maxConcurrency int) *Enricher {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &Enricher{
		analyzer: analyzer,
		sem:      semaphore.NewWeighted(int64(maxConcurrency)),
	}
}

// Enrich 为检索结果填充 SentimentByDocument
//
// 相同文本只打分一次；失败的文档保持未标注。从不返回错误。
func (e *Enricher) Enrich(ctx context.Context, result *entity.RetrievalResult) *entity.RetrievalResult {
	if result.Empty() || e == nil || e.analyzer == nil {
		return result
	}
	if result.SentimentByDocument == nil {
		result.SentimentByDocument = map[string]entity.Sentiment{}
	}

	byText := make(map[string][]string, len(result.Retrieved))
	texts := make([]string, 0, len(result.Retrieved))
	for _, d := range result.Retrieved {
		if _, ok := byText[d.Document.Text]; !ok {
			texts = append(texts, d.Document.Text)
		}
		byText[d.Document.Text] = append(byText[d.Document.Text], d.Document.ID)
	}

	ctx, span := tracer.Start(ctx, "sentiment.Enricher.Enrich",
		trace.WithAttributes(attribute.Int("sentiment.unique_texts", len(texts))))
	defer span.End()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		failed int
	)
	for _, text := range texts {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			// 查询已取消，不再发起新的调用
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer e.sem.Release(1)

			s, err := e.analyzer.Analyze(ctx, text)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				logger.Warn(ctx, "sentiment enrichment failed", "documents", len(byText[text]), "error", err.Error())
				return
			}
			for _, id := range byText[text] {
				result.SentimentByDocument[id] = s
			}
		}()
	}
	wg.Wait()

	span.SetAttributes(
		attribute.Int("sentiment.annotated", len(result.SentimentByDocument)),
		attribute.Int("sentiment.failed", failed),
	)
	return result
}
