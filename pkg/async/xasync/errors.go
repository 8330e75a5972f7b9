package xasync

import (
	"errors"
	"fmt"
)

var (
	// ErrNilExecutor 表示 New 收到 nil 执行器。
	ErrNilExecutor = errors.New("xasync: nil executor")

	// ErrRejected 表示执行器拒绝了任务（队列满或已关闭），操作未执行。
	ErrRejected = errors.New("xasync: task rejected by executor")

	// ErrPanic 表示同步操作发生 panic，可用 errors.Is 判断。
	ErrPanic = errors.New("xasync: operation panicked")
)

// PanicError 携带同步操作 panic 时的值与堆栈。
type PanicError struct {
	// Op 为操作名。
	Op string
	// Value 为 recover() 返回的原始值。
	Value any
	// Stack 为 panic 发生时的 goroutine 堆栈。
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("xasync: operation %q panicked: %v", e.Op, e.Value)
}

// Is 使 errors.Is(err, ErrPanic) 成立。
func (e *PanicError) Is(target error) bool {
	return target == ErrPanic
}

// Unwrap 在 panic 值本身是 error 时返回它。
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ErrNilOperation 表示提交的同步操作为 nil，通过回调报告。
var ErrNilOperation = errors.New("xasync: nil operation")
