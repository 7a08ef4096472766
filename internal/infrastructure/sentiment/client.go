// Package sentiment 远程情感打分服务的 HTTP 客户端
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cinemind/internal/config"
	"cinemind/internal/domain/entity"
	"cinemind/pkg/metrics"
	"cinemind/pkg/resilience"
)

var tracer = otel.Tracer("sentiment")

const (
	analyzePath = "/api/v1/analyze"
	healthPath  = "/health"

	defaultTimeout = 3 * time.Second
)

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// StatusError 非 2xx 响应
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sentiment service returned %d: %s", e.StatusCode, e.Body)
}

// Client 情感打分客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	policy     resilience.Policy
}

// NewClient 创建客户端；重试只针对超时、5xx 与连接错误
func NewClient(cfg config.SentimentConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("sentiment base_url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	policy := cfg.Retry.Policy()
	if cfg.Retry.MaxAttempts <= 0 {
		policy.MaxAttempts = 2
	}
	policy.OnRetry = func(name string, _ int, _ error, _ time.Duration) {
		metrics.RemoteRetryTotal.WithLabelValues(name).Inc()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{},
		timeout:    timeout,
		policy:     policy,
	}, nil
}

// Analyze 对单段文本打分
func (c *Client) Analyze(ctx context.Context, text string) (entity.Sentiment, error) {
	ctx, span := tracer.Start(ctx, "sentiment.Analyze",
		trace.WithAttributes(attribute.Int("text.length", len(text))))
	defer span.End()

	body, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return entity.Sentiment{}, err
	}

	out, err := resilience.Do(ctx, c.policy, "sentiment", func(ctx context.Context) (entity.Sentiment, error) {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.analyzeOnce(ctx, body)
	})
	if err != nil {
		span.RecordError(err)
		metrics.SentimentCallTotal.WithLabelValues("error").Inc()
		return entity.Sentiment{}, err
	}
	metrics.SentimentCallTotal.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.String("sentiment.label", string(out.Label)))
	return out, nil
}

func (c *Client) analyzeOnce(ctx context.Context, body []byte) (entity.Sentiment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, bytes.NewReader(body))
	if err != nil {
		return entity.Sentiment{}, resilience.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return entity.Sentiment{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		se := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		if resp.StatusCode >= 500 {
			return entity.Sentiment{}, se
		}
		return entity.Sentiment{}, resilience.Permanent(se)
	}

	var ar analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return entity.Sentiment{}, resilience.Permanent(fmt.Errorf("decode sentiment response: %w", err))
	}
	label, ok := entity.ParseSentimentLabel(ar.Sentiment)
	if !ok {
		return entity.Sentiment{}, resilience.Permanent(fmt.Errorf("unknown sentiment label %q", ar.Sentiment))
	}
	if ar.Confidence < 0 || ar.Confidence > 1 {
		return entity.Sentiment{}, resilience.Permanent(fmt.Errorf("confidence %v out of range", ar.Confidence))
	}
	return entity.Sentiment{Label: label, Score: ar.Confidence}, nil
}

// HealthCheck GET /health
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sentiment health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
