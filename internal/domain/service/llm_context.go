// Package service 领域层共享的上下文约定
package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const llmCtxKeyProvider llmCtxKey = "llm_provider"

// WithProvider 在 context 中标记本次生成使用的 LLM 提供商，供回调上报指标
func WithProvider(ctx context.Context, provider string) context.Context {
	if ctx == nil {
		return nil
	}
	p := strings.TrimSpace(provider)
	if p == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyProvider, p)
}

// ProviderFromContext 读取 LLM 提供商，未设置时为 unknown
func ProviderFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	v := ctx.Value(llmCtxKeyProvider)
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return strings.TrimSpace(s)
}
