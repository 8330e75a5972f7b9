package xmongo

import (
	"context"

	"github.com/omeyang/xmgo/pkg/async/xasync"
)

// AsyncCollection 是 Collection 的异步门面：每个方法把对应的同步操作
// 提交给调度器并立即返回句柄，结果通过回调交付。
//
// 回调语义（由 xasync.Dispatcher 保证）：
//   - 至多调用一次，在执行器的 goroutine 上，从不在调用方 goroutine 上；
//   - 在操作开始前 Cancel 成功时，操作与回调都不会发生；
//   - 值与错误互斥，失败时值为零值（Count 为 0，文档为 nil）；
//   - 异步方法从不 panic，也不在调用点返回错误。
type AsyncCollection[T any] struct {
	coll *Collection[T]
	d    *xasync.Dispatcher
}

// NewAsyncCollection 用调度器包装同步集合。调度器（及其执行器）的生命周期由调用方管理。
func NewAsyncCollection[T any](coll *Collection[T], d *xasync.Dispatcher) (*AsyncCollection[T], error) {
	if coll == nil {
		return nil, ErrNilCollection
	}
	if d == nil {
		return nil, ErrNilDispatcher
	}
	return &AsyncCollection[T]{coll: coll, d: d}, nil
}

// Collection 返回底层的同步集合。
func (a *AsyncCollection[T]) Collection() *Collection[T] { return a.coll }

// =============================================================================
// 查询
// =============================================================================

// Find 异步执行 Collection.Find。回调收到的游标由回调负责关闭；cb 为 nil 时游标被自动关闭。
func (a *AsyncCollection[T]) Find(ctx context.Context, selector any, cb func(*Cursor[T], error), opts ...QueryOption) *xasync.Handle {
	return xasync.Call(ctx, a.d, "find", func(ctx context.Context) (*Cursor[T], error) {
		return a.coll.Find(ctx, selector, opts...)
	}, cb)
}

// FindOne 异步执行 Collection.FindOne。
func (a *AsyncCollection[T]) FindOne(ctx context.Context, selector any, cb func(*T, error), opts ...QueryOption) *xasync.Handle {
	return xasync.Call(ctx, a.d, "find_one", func(ctx context.Context) (*T, error) {
		return a.coll.FindOne(ctx, selector, opts...)
	}, cb)
}

// FindAll 异步执行 Collection.FindAll。回调收到的游标由回调负责关闭；cb 为 nil 时游标被自动关闭。
func (a *AsyncCollection[T]) FindAll(ctx context.Context, cb func(*Cursor[T], error), opts ...QueryOption) *xasync.Handle {
	return xasync.Call(ctx, a.d, "find_all", func(ctx context.Context) (*Cursor[T], error) {
		return a.coll.FindAll(ctx, opts...)
	}, cb)
}

// FindAndModify 异步执行 Collection.FindAndModify。
func (a *AsyncCollection[T]) FindAndModify(ctx context.Context, document, selector any, cb func(*T, error), opts ...QueryOption) *xasync.Handle {
	return xasync.Call(ctx, a.d, "find_and_modify", func(ctx context.Context) (*T, error) {
		return a.coll.FindAndModify(ctx, document, selector, opts...)
	}, cb)
}

// MapReduce 异步执行 Collection.MapReduce。
func (a *AsyncCollection[T]) MapReduce(ctx context.Context, spec MapReduceSpec, cb func(*MapReduceResult, error)) *xasync.Handle {
	return xasync.Call(ctx, a.d, "map_reduce", func(ctx context.Context) (*MapReduceResult, error) {
		return a.coll.MapReduce(ctx, spec)
	}, cb)
}

// Count 异步执行 Collection.Count。失败时回调收到 (0, err)。
func (a *AsyncCollection[T]) Count(ctx context.Context, selector any, cb func(int64, error)) *xasync.Handle {
	return xasync.Call(ctx, a.d, "count", func(ctx context.Context) (int64, error) {
		return a.coll.Count(ctx, selector)
	}, cb)
}

// FindPage 异步执行 Collection.FindPage。
func (a *AsyncCollection[T]) FindPage(ctx context.Context, selector any, page PageOptions, cb func(*PageResult[T], error)) *xasync.Handle {
	return xasync.Call(ctx, a.d, "find_page", func(ctx context.Context) (*PageResult[T], error) {
		return a.coll.FindPage(ctx, selector, page)
	}, cb)
}

// =============================================================================
// 写入
// =============================================================================

// Insert 异步执行 Collection.Insert。
func (a *AsyncCollection[T]) Insert(ctx context.Context, document T, safemode bool, cb func(error)) *xasync.Handle {
	return xasync.Exec(ctx, a.d, "insert", func(ctx context.Context) error {
		return a.coll.Insert(ctx, document, safemode)
	}, cb)
}

// InsertMany 异步执行 Collection.InsertMany。
func (a *AsyncCollection[T]) InsertMany(ctx context.Context, documents []T, safemode bool, cb func(error)) *xasync.Handle {
	return xasync.Exec(ctx, a.d, "insert_many", func(ctx context.Context) error {
		return a.coll.InsertMany(ctx, documents, safemode)
	}, cb)
}

// Remove 异步执行 Collection.Remove。
func (a *AsyncCollection[T]) Remove(ctx context.Context, selector any, safemode bool, cb func(error)) *xasync.Handle {
	return xasync.Exec(ctx, a.d, "remove", func(ctx context.Context) error {
		return a.coll.Remove(ctx, selector, safemode)
	}, cb)
}

// Update 异步执行 Collection.Update。
func (a *AsyncCollection[T]) Update(ctx context.Context, document, selector any, flags UpdateFlags, safemode bool, cb func(error)) *xasync.Handle {
	return xasync.Exec(ctx, a.d, "update", func(ctx context.Context) error {
		return a.coll.Update(ctx, document, selector, flags, safemode)
	}, cb)
}

// UpdateAll 异步执行 Collection.UpdateAll。
func (a *AsyncCollection[T]) UpdateAll(ctx context.Context, document, selector any, safemode bool, cb func(error)) *xasync.Handle {
	return xasync.Exec(ctx, a.d, "update_all", func(ctx context.Context) error {
		return a.coll.UpdateAll(ctx, document, selector, safemode)
	}, cb)
}

// Save 异步执行 Collection.Save。
func (a *AsyncCollection[T]) Save(ctx context.Context, document T, safemode bool, cb func(error)) *xasync.Handle {
	return xasync.Exec(ctx, a.d, "save", func(ctx context.Context) error {
		return a.coll.Save(ctx, document, safemode)
	}, cb)
}
