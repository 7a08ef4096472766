// Package embedding 提供 Embedding 服务客户端与批量网关
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"cinemind/internal/config"
	"cinemind/pkg/resilience"
)

// HTTPEmbedder 自建 Embedding 服务客户端（POST {endpoint}/embed）
type HTTPEmbedder struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

var _ embedding.Embedder = (*HTTPEmbedder)(nil)

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	TokensUsed int         `json:"tokens_used"`
}

// StatusError 非 2xx 响应
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("embedding request failed: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("embedding request failed: status=%d body=%s", e.StatusCode, e.Body)
}

// NewHTTPEmbedder 创建 HTTP Embedding 客户端
func NewHTTPEmbedder(cfg *config.EmbeddingConfig) (*HTTPEmbedder, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding endpoint: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/embed"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEmbedder{
		endpoint:   u.String(),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// EmbedStrings 实现 eino embedding.Embedder；4xx（429 除外）标记为不可重试
func (c *HTTPEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	reqBody, err := json.Marshal(&embedRequest{Texts: texts, Model: c.model})
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("failed to marshal embed request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("failed to create embed request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, classifyStatus(httpResp)
	}

	var resp embedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	return resp.Embeddings, nil
}

func classifyStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
			return resilience.RetryAfter(err, time.Duration(secs)*time.Second)
		}
		return err
	case resp.StatusCode >= 500:
		return err
	default:
		return resilience.Permanent(err)
	}
}
