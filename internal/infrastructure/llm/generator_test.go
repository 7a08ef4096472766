package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinemind/internal/config"
	"cinemind/pkg/resilience"
)

type fakeChatModel struct {
	calls   atomic.Int32
	replies []string
	errs    []error
	block   bool
}

func (m *fakeChatModel) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	i := int(m.calls.Add(1)) - 1
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	reply := ""
	if i < len(m.replies) {
		reply = m.replies[i]
	}
	return schema.AssistantMessage(reply, nil), nil
}

func (m *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func fastRetry() resilience.Policy {
	return resilience.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestGenerator_Generate(t *testing.T) {
	m := &fakeChatModel{replies: []string{"  The answer.  "}}
	g := NewGenerator(m, GeneratorOptions{Provider: "openai", Model: "gpt", Retry: fastRetry()})

	out, err := g.Generate(context.Background(), []*schema.Message{schema.UserMessage("q")})
	require.NoError(t, err)
	assert.Equal(t, "The answer.", out)
}

func TestGenerator_RetriesTransientError(t *testing.T) {
	m := &fakeChatModel{errs: []error{errors.New("502 bad gateway")}, replies: []string{"", "ok"}}
	g := NewGenerator(m, GeneratorOptions{Retry: fastRetry()})

	out, err := g.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), m.calls.Load())
}

func TestGenerator_EmptyOutputIsNotRetried(t *testing.T) {
	m := &fakeChatModel{replies: []string{"   "}}
	g := NewGenerator(m, GeneratorOptions{Retry: fastRetry()})

	_, err := g.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyOutput)
	assert.Equal(t, int32(1), m.calls.Load())
}

func TestGenerator_Exhausted(t *testing.T) {
	m := &fakeChatModel{errs: []error{errors.New("a"), errors.New("b")}}
	g := NewGenerator(m, GeneratorOptions{Retry: fastRetry()})

	_, err := g.Generate(context.Background(), nil)
	var ex *resilience.ExhaustedError
	assert.ErrorAs(t, err, &ex)
}

func TestGenerator_PerCallTimeout(t *testing.T) {
	m := &fakeChatModel{block: true}
	g := NewGenerator(m, GeneratorOptions{Timeout: 5 * time.Millisecond, Retry: fastRetry()})

	_, err := g.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(2), m.calls.Load())
}

func TestEinoFactory_Resolve(t *testing.T) {
	f := NewEinoFactory(&config.LLMConfig{
		DefaultProvider: "openai",
		Providers:       map[string]config.ProviderConfig{"openai": {Model: "gpt-4o-mini"}},
	})
	name, cfg, err := f.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "openai", name)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)

	_, err = f.Get(context.Background(), "anthropic")
	assert.Error(t, err)
}
