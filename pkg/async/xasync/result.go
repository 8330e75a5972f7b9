package xasync

// Result 是一次异步调用的结果：值与错误互斥。
type Result[T any] struct {
	Value T
	Err   error
}

// OK 报告调用是否成功。
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Unpack 以 (value, error) 形式返回结果。
func (r Result[T]) Unpack() (T, error) {
	return r.Value, r.Err
}

// newResult 构造结果，失败时丢弃值，保证值与错误互斥。
func newResult[T any](v T, err error) Result[T] {
	if err != nil {
		var zero T
		return Result[T]{Value: zero, Err: err}
	}
	return Result[T]{Value: v}
}
