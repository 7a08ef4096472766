package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cinemind/internal/domain/service"
	"cinemind/pkg/metrics"
	"cinemind/pkg/resilience"
)

var tracer = otel.Tracer("llm")

// ErrEmptyOutput 模型返回空内容
var ErrEmptyOutput = errors.New("model returned empty output")

// GeneratorOptions 生成器参数
type GeneratorOptions struct {
	Provider string
	Model    string
	// Timeout 单次调用超时
	Timeout time.Duration
	Retry   resilience.Policy
}

// Generator 对 ChatModel 的单轮生成封装：超时、共享重试策略、全局回调
type Generator struct {
	chatModel model.BaseChatModel
	provider  string
	model     string
	timeout   time.Duration
	policy    resilience.Policy
}

// NewGenerator 创建生成器
func NewGenerator(chatModel model.BaseChatModel, opts GeneratorOptions) *Generator {
	policy := opts.Retry
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 2
	}
	policy.OnRetry = func(name string, _ int, _ error, _ time.Duration) {
		metrics.RemoteRetryTotal.WithLabelValues(name).Inc()
	}
	return &Generator{
		chatModel: chatModel,
		provider:  opts.Provider,
		model:     opts.Model,
		timeout:   opts.Timeout,
		policy:    policy,
	}
}

// Generate 返回模型输出文本；空输出视为不可重试错误
func (g *Generator) Generate(ctx context.Context, messages []*schema.Message) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.Generator.Generate",
		trace.WithAttributes(
			attribute.String("llm.provider", g.provider),
			attribute.String("llm.model", g.model),
			attribute.Int("llm.messages", len(messages)),
		))
	defer span.End()

	ctx = service.WithProvider(ctx, g.provider)
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "answer",
		Type:      g.provider,
		Component: components.ComponentOfChatModel,
	})

	text, err := resilience.Do(ctx, g.policy, "generation", func(ctx context.Context) (string, error) {
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		out, err := g.chatModel.Generate(ctx, messages)
		if err != nil {
			return "", err
		}
		text := ""
		if out != nil {
			text = strings.TrimSpace(out.Content)
		}
		if text == "" {
			return "", resilience.Permanent(ErrEmptyOutput)
		}
		return text, nil
	})
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return text, nil
}
