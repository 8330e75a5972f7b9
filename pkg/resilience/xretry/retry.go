package xretry

import (
	"context"
	"time"
)

// RetryPolicy 决定失败后是否继续尝试。
type RetryPolicy interface {
	// MaxAttempts 返回总尝试次数上限（含首次），至少为 1。
	MaxAttempts() int

	// ShouldRetry 在第 attempt 次（从 1 开始）失败后调用。
	ShouldRetry(ctx context.Context, attempt int, err error) bool
}

// BackoffPolicy 计算第 attempt 次失败后的等待时间。
type BackoffPolicy interface {
	NextDelay(attempt int) time.Duration
}

// Classifier 报告错误是否值得重试。
type Classifier func(err error) bool
