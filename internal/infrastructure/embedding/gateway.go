package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	apperrors "cinemind/pkg/errors"
	"cinemind/pkg/logger"
	"cinemind/pkg/metrics"
	"cinemind/pkg/resilience"
	pkgtracer "cinemind/pkg/tracer"
)

var tracer = otel.Tracer("embedding")

const (
	DefaultBatchSize = 32
	MaxBatchSize     = 100
)

// QueryCache 查询向量缓存，并发相同 key 只加载一次
type QueryCache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error)
}

// GatewayOptions 网关参数
type GatewayOptions struct {
	Model     string
	BatchSize int
	// Timeout 单次批量调用超时
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             resilience.Policy
	Cache             QueryCache
	CacheTTL          time.Duration
}

// Gateway 批量去重、分批、限速与重试的 Embedding 网关
type Gateway struct {
	backend   embedding.Embedder
	model     string
	batchSize int
	timeout   time.Duration
	limiter   *rate.Limiter
	policy    resilience.Policy
	cache     QueryCache
	cacheTTL  time.Duration
}

// NewGateway 创建 Embedding 网关
func NewGateway(backend embedding.Embedder, opts GatewayOptions) *Gateway {
	bs := opts.BatchSize
	if bs <= 0 {
		bs = DefaultBatchSize
	}
	if bs > MaxBatchSize {
		bs = MaxBatchSize
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	policy := opts.Retry
	policy.OnRetry = func(name string, _ int, _ error, _ time.Duration) {
		metrics.RemoteRetryTotal.WithLabelValues(name).Inc()
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Gateway{
		backend:   backend,
		model:     opts.Model,
		batchSize: bs,
		timeout:   opts.Timeout,
		limiter:   limiter,
		policy:    policy,
		cache:     opts.Cache,
		cacheTTL:  ttl,
	}
}

// Embed 返回与输入一一对应的向量；相同文本只请求一次
//
// 任一批次重试耗尽即返回 CodeEmbeddingUnavailable。
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "embedding.Gateway.Embed",
		trace.WithAttributes(attribute.Int("embedding.texts", len(texts))))
	defer span.End()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	unique := make([]string, 0, len(texts))
	slot := make([]int, len(texts))
	seen := make(map[string]int, len(texts))
	for i, t := range texts {
		if j, ok := seen[t]; ok {
			slot[i] = j
			continue
		}
		seen[t] = len(unique)
		slot[i] = len(unique)
		unique = append(unique, t)
	}
	span.SetAttributes(attribute.Int("embedding.unique", len(unique)))

	vectors := make([][]float32, 0, len(unique))
	for start := 0; start < len(unique); start += g.batchSize {
		end := min(start+g.batchSize, len(unique))
		batch, err := g.embedBatch(ctx, unique[start:end])
		if err != nil {
			pkgtracer.RecordError(span, err)
			return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingUnavailable, "embedding unavailable")
		}
		vectors = append(vectors, batch...)
	}

	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = vectors[slot[i]]
	}
	return out, nil
}

func (g *Gateway) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := resilience.Do(ctx, g.policy, "embedding", func(ctx context.Context) ([][]float32, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		raw, err := g.backend.EmbedStrings(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(raw) != len(texts) {
			return nil, resilience.Permanent(fmt.Errorf("embedding count mismatch: got %d, want %d", len(raw), len(texts)))
		}
		return toFloat32(raw), nil
	})
	metrics.EmbeddingCallDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EmbeddingCallTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.EmbeddingCallTotal.WithLabelValues("success").Inc()
	return vectors, nil
}

// EmbedQuery 查询向量化，配置缓存时优先读缓存
func (g *Gateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if g.cache == nil {
		return g.embedOne(ctx, text)
	}

	var (
		loaded    bool
		loaderErr error
	)
	raw, err := g.cache.GetOrLoadSafe(ctx, g.cacheKey(text), g.cacheTTL, func() (interface{}, error) {
		loaded = true
		v, err := g.embedOne(ctx, text)
		loaderErr = err
		return v, err
	})
	if loaderErr != nil {
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		return nil, loaderErr
	}
	if err != nil {
		metrics.EmbeddingCacheTotal.WithLabelValues("error").Inc()
		logger.Warn(ctx, "query embedding cache unavailable, embedding directly", "error", err.Error())
		return g.embedOne(ctx, text)
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil || len(vec) == 0 {
		metrics.EmbeddingCacheTotal.WithLabelValues("error").Inc()
		return g.embedOne(ctx, text)
	}
	if loaded {
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
	} else {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
	}
	return vec, nil
}

func (g *Gateway) embedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *Gateway) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(g.model + "\x1f" + text))
	return "qemb:" + hex.EncodeToString(sum[:16])
}

func toFloat32(in [][]float64) [][]float32 {
	out := make([][]float32, len(in))
	for i, v := range in {
		f := make([]float32, len(v))
		for j, x := range v {
			f[j] = float32(x)
		}
		out[i] = f
	}
	return out
}
