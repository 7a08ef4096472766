package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"cinemind/internal/config"
)

// NewEinoEmbedder 创建基于 Eino 的 OpenAI 兼容 Embedder
func NewEinoEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding api_key or base_url is required")
	}

	embedder, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}
	return embedder, nil
}

// NewBackend 按 provider 选择 Embedding 后端
func NewBackend(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewEinoEmbedder(ctx, cfg)
	case "http":
		return NewHTTPEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
