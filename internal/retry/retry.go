// Package retry 提供显式的重试策略对象，注入到搜索客户端与正文抽取器中使用。
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/iWorld-y/risk_radar/internal/fault"
)

// BackoffFunc 根据已失败次数（从 1 开始）返回下一次重试前的等待时长
type BackoffFunc func(attempt int) time.Duration

// Fixed 固定间隔退避
func Fixed(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

// Exponential 指数退避：base * 2^(attempt-1)，不超过 max（max 为 0 时不设上限）
func Exponential(base, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if max > 0 && d >= max {
				return max
			}
		}
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

// Policy 重试策略
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	// Retryable 判断错误是否可重试，默认 fault.IsRetryable
	Retryable func(error) bool
	// OnRetry 每次决定重试前回调，可为空
	OnRetry func(attempt int, err error)
}

// ExhaustedError 重试耗尽后返回的错误
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// None 不重试的策略
func None() Policy {
	return Policy{MaxAttempts: 1}
}

// Do 按策略执行 fn。不可重试的错误原样返回；重试耗尽返回 *ExhaustedError。
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = fault.IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return &ExhaustedError{Attempts: attempt - 1, Err: lastErr}
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &ExhaustedError{Attempts: attempt, Err: lastErr}
		case <-timer.C:
		}
	}
	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}
