package xretry

import (
	"context"
	"errors"
)

var (
	// ErrNilRetryer Retryer 为 nil。
	ErrNilRetryer = errors.New("xretry: nil retryer")

	// ErrNilContext context 为 nil。
	ErrNilContext = errors.New("xretry: nil context")

	// ErrNilFunc 操作函数为 nil。
	ErrNilFunc = errors.New("xretry: nil function")
)

// PermanentError 标记不应重试的错误。
type PermanentError struct {
	Err error
}

// Permanent 将 err 标记为永久性错误。nil 原样返回。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent 报告 err 链上是否存在 PermanentError。
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsRetryable 是默认的错误分类：
//   - nil、永久性错误、context 取消或超时：不重试
//   - 其他错误：重试
func IsRetryable(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
