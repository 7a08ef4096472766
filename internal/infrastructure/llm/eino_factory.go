// Package llm 提供 Eino ChatModel 工厂与带重试的生成器
package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"cinemind/internal/config"
)

// EinoFactory 管理多个 Eino ChatModel 客户端实例
type EinoFactory struct {
	config *config.LLMConfig
	models map[string]model.BaseChatModel
	mu     sync.RWMutex
}

// NewEinoFactory 创建 Eino LLM 工厂
func NewEinoFactory(cfg *config.LLMConfig) *EinoFactory {
	return &EinoFactory{
		config: cfg,
		models: make(map[string]model.BaseChatModel),
	}
}

// Resolve 解析提供商名称，空值使用默认提供商
func (f *EinoFactory) Resolve(name string) (string, config.ProviderConfig, error) {
	if name == "" {
		name = f.config.DefaultProvider
	}
	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return "", config.ProviderConfig{}, fmt.Errorf("provider %s not found in LLM config", name)
	}
	return name, providerCfg, nil
}

// Get 获取指定名称的 ChatModel，如果未指定则返回默认客户端
func (f *EinoFactory) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	name, providerCfg, err := f.Resolve(name)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	m, ok := f.models[name]
	f.mu.RUnlock()
	if ok {
		return m, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok = f.models[name]; ok {
		return m, nil
	}

	modelCfg := &openai.ChatModelConfig{
		APIKey:      providerCfg.APIKey,
		BaseURL:     providerCfg.BaseURL,
		Model:       providerCfg.Model,
		Temperature: ptrFloat32(float32(providerCfg.Temperature)),
		Timeout:     providerCfg.Timeout,
	}
	if providerCfg.MaxTokens > 0 {
		modelCfg.MaxTokens = &providerCfg.MaxTokens
	}
	chatModel, err := openai.NewChatModel(ctx, modelCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create eino chat model for %s: %w", name, err)
	}

	f.models[name] = chatModel
	return chatModel, nil
}

func ptrFloat32(f float32) *float32 {
	return &f
}
