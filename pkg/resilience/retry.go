// Package resilience 提供远程调用的有界重试策略
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"cinemind/pkg/logger"
)

// Policy 有界重试策略，由 embedding、sentiment、generation 调用方共享
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter 抖动比例，取值 [0,1)
	Jitter float64
	// Retryable 判断错误是否可重试；为空时除 Permanent 与 context 错误外均重试
	Retryable func(error) bool
	// OnRetry 每次决定重试时回调，用于指标上报
	OnRetry func(name string, attempt int, err error, delay time.Duration)
}

// DefaultPolicy 默认策略：3 次尝试，200ms 起步，5s 封顶
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

// ExhaustedError 重试耗尽
type ExhaustedError struct {
	Name     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed for %s: %v", e.Attempts, e.Name, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记不可重试的错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 判断错误是否被标记为不可重试
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type retryAfterError struct {
	err   error
	delay time.Duration
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

// RetryAfter 携带服务端建议的等待时间（如 429 的 Retry-After）
func RetryAfter(err error, delay time.Duration) error {
	if err == nil {
		return nil
	}
	return &retryAfterError{err: err, delay: delay}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = d.Jitter
	}
	return p
}

// Do 按策略执行 fn，直到成功、遇到不可重试错误、context 结束或尝试次数耗尽
func (p Policy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("retry aborted for %s: %w", name, errors.Join(err, lastErr))
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug(ctx, "succeeded after retry", "operation", name, "attempt", attempt)
			}
			return nil
		}
		if !p.shouldRetry(ctx, lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.delay(attempt, lastErr)
		logger.Warn(ctx, "remote call failed, retrying",
			"operation", name,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"next_delay", delay,
			"error", lastErr.Error(),
		)
		if p.OnRetry != nil {
			p.OnRetry(name, attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted during backoff for %s: %w", name, errors.Join(ctx.Err(), lastErr))
		}
	}
	return &ExhaustedError{Name: name, Attempts: p.MaxAttempts, Err: lastErr}
}

// Do 泛型版本，返回 fn 的结果
func Do[T any](ctx context.Context, p Policy, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, name, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p Policy) shouldRetry(ctx context.Context, err error) bool {
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// 外层 context 已超时则不再重试；单次调用自身的超时仍可重试
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return false
	}
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return true
}

func (p Policy) delay(attempt int, err error) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.Jitter > 0 {
		backoff += backoff * p.Jitter * (2*rand.Float64() - 1)
	}
	var ra *retryAfterError
	if errors.As(err, &ra) && float64(ra.delay) > backoff {
		backoff = float64(ra.delay)
	}
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}
	if backoff <= 0 {
		backoff = float64(p.BaseDelay)
	}
	return time.Duration(backoff)
}
