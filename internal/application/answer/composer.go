// Package answer 将检索结果组装为 prompt 并生成带引用的回答
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cinemind/internal/domain/entity"
	apperrors "cinemind/pkg/errors"
	"cinemind/pkg/logger"
	pkgtracer "cinemind/pkg/tracer"
)

var tracer = otel.Tracer("answer")

const DefaultMaxContextTokens = 3000

// NoInformationAnswer 检索为空时的固定回答
const NoInformationAnswer = "I could not find any information about that in the film library."

// TextGenerator 远程生成模型
type TextGenerator interface {
	Generate(ctx context.Context, messages []*schema.Message) (string, error)
}

// Options 组装参数
type Options struct {
	MaxContextTokens int
	Counter          TokenCounter
	Prompts          *Prompts
}

// Composer 回答组装器
type Composer struct {
	generator TextGenerator
	maxTokens int
	counter   TokenCounter
	prompts   *Prompts
}

// NewComposer 创建回答组装器
func NewComposer(generator TextGenerator, opts Options) *Composer {
	maxTokens := opts.MaxContextTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	counter := opts.Counter
	if counter == nil {
		counter = EstimateCounter{}
	}
	prompts := opts.Prompts
	if prompts == nil {
		prompts = NewPrompts()
	}
	return &Composer{
		generator: generator,
		maxTokens: maxTokens,
		counter:   counter,
		prompts:   prompts,
	}
}

// ContextBlock 进入 prompt 的一段上下文
type ContextBlock struct {
	DocumentID string
	Text       string
}

// Compose 生成回答；引用即实际进入 prompt 的文档 ID
func (c *Composer) Compose(ctx context.Context, result *entity.RetrievalResult) (*entity.Answer, error) {
	if result.Empty() {
		return &entity.Answer{Text: NoInformationAnswer, Citations: []string{}, Grounded: false}, nil
	}

	ctx, span := tracer.Start(ctx, "answer.Composer.Compose",
		trace.WithAttributes(attribute.Int("answer.retrieved", len(result.Retrieved))))
	defer span.End()

	blocks := c.BuildContext(result)
	messages, err := c.messages(ctx, result.QueryText, blocks)
	if err != nil {
		pkgtracer.RecordError(span, err)
		return nil, apperrors.Wrap(err, apperrors.CodeGenerationUnavailable, "prompt rendering failed").WithDetail("prompt")
	}

	text, err := c.generator.Generate(ctx, messages)
	if err != nil {
		pkgtracer.RecordError(span, err)
		return nil, apperrors.Wrap(err, apperrors.CodeGenerationUnavailable, "answer generation failed").WithDetail("generate")
	}

	citations := make([]string, len(blocks))
	for i, b := range blocks {
		citations[i] = b.DocumentID
	}
	span.SetAttributes(attribute.Int("answer.citations", len(citations)))
	logger.Debug(ctx, "answer composed", "blocks", len(blocks), "retrieved", len(result.Retrieved))
	return &entity.Answer{Text: strings.TrimSpace(text), Citations: citations, Grounded: true}, nil
}

// BuildContext 按分数降序拼装上下文块，直到 token 预算用尽；第一块总会保留（必要时截断）
func (c *Composer) BuildContext(result *entity.RetrievalResult) []ContextBlock {
	blocks := make([]ContextBlock, 0, len(result.Retrieved))
	used := 0
	for i, hit := range result.Retrieved {
		header := blockHeader(i+1, hit, result.SentimentByDocument)
		text := header + " " + strings.TrimSpace(hit.Document.Text)
		n := c.counter.Count(text)
		if used+n > c.maxTokens {
			if i > 0 {
				break
			}
			text = c.counter.Truncate(text, c.maxTokens)
			n = c.counter.Count(text)
		}
		used += n
		blocks = append(blocks, ContextBlock{DocumentID: hit.Document.ID, Text: text})
	}
	return blocks
}

func (c *Composer) messages(ctx context.Context, question string, blocks []ContextBlock) ([]*schema.Message, error) {
	tpl, err := c.prompts.ChatTemplate(PromptAnswerV1)
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.Text
	}
	return tpl.Format(ctx, map[string]any{
		"context":  strings.Join(parts, "\n\n"),
		"question": question,
	})
}

// blockHeader [i] (LABEL · title · id=... · sentiment=LABEL 0.87)
func blockHeader(n int, hit entity.ScoredDocument, sentiments map[string]entity.Sentiment) string {
	doc := hit.Document
	st := doc.SourceType
	if st == "" {
		st = doc.Metadata.SourceType
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] (%s · %s · id=%s", n, strings.ToUpper(string(st)), doc.Metadata.Title, doc.ID)
	if s, ok := sentiments[doc.ID]; ok {
		fmt.Fprintf(&b, " · sentiment=%s %.2f", s.Label, s.Score)
	}
	b.WriteString(")")
	return b.String()
}
