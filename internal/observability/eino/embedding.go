package eino

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/embedding"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cinemind/pkg/metrics"
)

// newEmbeddingCallbackHandler 为 Embedding 后端调用记录 span 与 token 消耗
func newEmbeddingCallbackHandler() *cbtemplate.EmbeddingCallbackHandler {
	return &cbtemplate.EmbeddingCallbackHandler{
		OnStart: func(ctx context.Context, _ *einocb.RunInfo, input *embedding.CallbackInput) context.Context {
			var attrs []attribute.KeyValue
			if input != nil {
				attrs = append(attrs, attribute.Int("embedding.texts", len(input.Texts)))
				if input.Config != nil {
					attrs = append(attrs, attribute.String("embedding.model", input.Config.Model))
					ctx = context.WithValue(ctx, modelKey{}, input.Config.Model)
				}
			}
			ctx, _ = otel.Tracer("eino").Start(ctx, "embedding.backend", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, output *embedding.CallbackOutput) context.Context {
			span := trace.SpanFromContext(ctx)
			if output != nil && output.TokenUsage != nil {
				metrics.LLMTokensUsed.WithLabelValues("embedding", modelFromContext(ctx), "prompt").
					Add(float64(output.TokenUsage.PromptTokens))
				span.SetAttributes(attribute.Int("embedding.prompt_tokens", output.TokenUsage.PromptTokens))
			}
			span.End()
			return ctx
		},

		OnError: func(ctx context.Context, _ *einocb.RunInfo, err error) context.Context {
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return ctx
		},
	}
}
