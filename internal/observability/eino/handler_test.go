package eino

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
)

func TestChatModelCallbackHandler_Lifecycle(t *testing.T) {
	h := newChatModelCallbackHandler()
	ctx := h.OnStart(context.Background(), nil, &model.CallbackInput{
		Messages: []*schema.Message{schema.UserMessage("hi")},
		Config:   &model.Config{Model: "gpt-4o-mini"},
	})
	assert.Equal(t, "gpt-4o-mini", modelFromContext(ctx))

	time.Sleep(time.Millisecond)
	assert.Greater(t, elapsedSeconds(ctx), 0.0)

	assert.NotPanics(t, func() {
		h.OnEnd(ctx, nil, &model.CallbackOutput{
			TokenUsage: &model.TokenUsage{PromptTokens: 10, CompletionTokens: 3},
		})
	})
	assert.NotPanics(t, func() {
		h.OnError(ctx, nil, errors.New("rate limited"))
	})
}

func TestElapsedSeconds_NoStart(t *testing.T) {
	assert.Zero(t, elapsedSeconds(context.Background()))
	assert.Empty(t, modelNameFromInput(nil))
	assert.Empty(t, modelNameFromOutput(&model.CallbackOutput{}))
}

func TestEmbeddingCallbackHandler_Lifecycle(t *testing.T) {
	h := newEmbeddingCallbackHandler()
	ctx := h.OnStart(context.Background(), nil, &embedding.CallbackInput{
		Texts:  []string{"a", "b"},
		Config: &embedding.Config{Model: "text-embedding-3-small"},
	})
	assert.Equal(t, "text-embedding-3-small", modelFromContext(ctx))

	assert.NotPanics(t, func() {
		h.OnEnd(ctx, nil, &embedding.CallbackOutput{TokenUsage: &embedding.TokenUsage{PromptTokens: 4}})
	})
	assert.NotPanics(t, func() {
		h.OnStart(context.Background(), nil, nil)
		h.OnError(ctx, nil, errors.New("quota exceeded"))
	})
}

func TestNewHandler(t *testing.T) {
	assert.NotNil(t, newHandler())
	assert.NotPanics(t, Init)
}
