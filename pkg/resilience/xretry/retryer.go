package xretry

import (
	"context"
	"math"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Retryer 按 RetryPolicy 与 BackoffPolicy 重复执行操作。并发安全，可复用。
type Retryer struct {
	retryPolicy   RetryPolicy
	backoffPolicy BackoffPolicy
	onRetry       func(attempt int, err error)
}

// RetryerOption 配置 Retryer。
type RetryerOption func(*Retryer)

// WithRetryPolicy 设置重试策略。nil 被忽略。
func WithRetryPolicy(p RetryPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.retryPolicy = p
		}
	}
}

// WithBackoffPolicy 设置退避策略。nil 被忽略。
func WithBackoffPolicy(p BackoffPolicy) RetryerOption {
	return func(r *Retryer) {
		if p != nil {
			r.backoffPolicy = p
		}
	}
}

// WithOnRetry 设置每次失败后的回调，attempt 从 1 开始。nil 被忽略。
func WithOnRetry(f func(attempt int, err error)) RetryerOption {
	return func(r *Retryer) {
		if f != nil {
			r.onRetry = f
		}
	}
}

// NewRetryer 创建 Retryer。默认 NewFixedRetry(3) + NewExponentialBackoff()。
func NewRetryer(opts ...RetryerOption) *Retryer {
	r := &Retryer{
		retryPolicy:   NewFixedRetry(3),
		backoffPolicy: NewExponentialBackoff(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do 执行 fn，失败时按策略重试，返回最后一次的错误。
//
// ctx 在等待期间被取消时，返回的错误同时包含 ctx 的错误与最后一次失败。
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil {
		return ErrNilRetryer
	}
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}
	return retry.New(r.buildOptions(ctx)...).Do(func() error {
		return fn(ctx)
	})
}

// DoWithResult 是 Do 的带返回值版本。
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrNilRetryer
	}
	if ctx == nil {
		return zero, ErrNilContext
	}
	if fn == nil {
		return zero, ErrNilFunc
	}
	return retry.NewWithData[T](r.buildOptions(ctx)...).Do(func() (T, error) {
		return fn(ctx)
	})
}

// MaxAttempts 返回总尝试次数上限。nil 接收者返回 1。
func (r *Retryer) MaxAttempts() int {
	if r == nil || r.retryPolicy == nil {
		return 1
	}
	return r.retryPolicy.MaxAttempts()
}

// buildOptions 每次调用重建选项：RetryIf 闭包持有本次执行的失败计数。
func (r *Retryer) buildOptions(ctx context.Context) []retry.Option {
	policy := r.retryPolicy
	if policy == nil {
		policy = NewFixedRetry(3)
	}
	backoff := r.backoffPolicy
	if backoff == nil {
		backoff = NewExponentialBackoff()
	}

	attempts := policy.MaxAttempts()
	if attempts < 1 {
		attempts = 1
	}

	failures := 0
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.RetryIf(func(err error) bool {
			failures++
			if !retry.IsRecoverable(err) {
				return false
			}
			return policy.ShouldRetry(ctx, failures, err)
		}),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return backoff.NextDelay(clampInt(n))
		}),
		retry.LastErrorOnly(true),
		retry.WrapContextErrorWithLastError(true),
	}
	if r.onRetry != nil {
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			r.onRetry(clampInt(n)+1, err)
		}))
	}
	return opts
}

func clampInt(n uint) int {
	if n > uint(math.MaxInt) {
		return math.MaxInt
	}
	return int(n)
}
