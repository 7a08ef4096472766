package redis

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// RateLimiter 固定窗口限流器（INCR + EXPIRE）
type RateLimiter struct {
	client *Client
	now    func() time.Time
}

// NewRateLimiter 创建限流器
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow 计数并判断当前窗口是否仍有配额，返回剩余次数
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Allow")
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int("ratelimit.limit", limit),
		attribute.Int64("ratelimit.window_ms", window.Milliseconds()),
	)
	defer span.End()

	full := l.client.Key(WindowKey(key, l.now(), window))
	pipe := l.client.rdb.TxPipeline()
	incr := pipe.Incr(ctx, full)
	pipe.Expire(ctx, full, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return false, 0, err
	}

	count := int(incr.Val())
	remaining := max(limit-count, 0)
	allowed := count <= limit
	span.SetAttributes(
		attribute.Int("ratelimit.current_count", count),
		attribute.Bool("ratelimit.allowed", allowed),
	)
	return allowed, remaining, nil
}

// WindowKey 生成固定窗口键：ratelimit:<key>:<窗口序号>
func WindowKey(key string, now time.Time, window time.Duration) string {
	if window <= 0 {
		window = time.Minute
	}
	return fmt.Sprintf("ratelimit:%s:%d", key, now.UnixMilli()/window.Milliseconds())
}
