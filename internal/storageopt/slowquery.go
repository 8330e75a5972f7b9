package storageopt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omeyang/xmgo/pkg/util/xpool"
)

// SlowQueryHook 慢查询同步钩子，在请求路径上执行，耗时直接计入请求延迟。
type SlowQueryHook[T any] func(ctx context.Context, info T)

// AsyncSlowQueryHook 慢查询异步钩子，在内部 worker pool 上执行。
// 不接收 context：异步执行时原始 context 可能已取消。
type AsyncSlowQueryHook[T any] func(info T)

// 默认值常量。
const (
	DefaultAsyncWorkerPoolSize = 10
	DefaultAsyncQueueSize      = 1000
)

// SlowQueryOptions 慢查询检测配置。
type SlowQueryOptions[T any] struct {
	// Threshold 慢查询阈值，为 0 时禁用检测。
	Threshold time.Duration

	// SyncHook 同步钩子。
	SyncHook SlowQueryHook[T]

	// AsyncHook 异步钩子。与 SyncHook 同时设置时两者都会被调用。
	AsyncHook AsyncSlowQueryHook[T]

	// AsyncWorkerPoolSize 异步 worker 数，默认 10。
	AsyncWorkerPoolSize int

	// AsyncQueueSize 异步队列大小，默认 1000。队列满时丢弃通知并计数。
	AsyncQueueSize int

	// Logger 记录异步钩子 panic，默认 slog.Default()。
	Logger *slog.Logger
}

// SlowQueryDetector 慢查询检测器，封装同步/异步钩子的调用逻辑。
type SlowQueryDetector[T any] struct {
	options SlowQueryOptions[T]
	pool    *xpool.Pool[T]
	dropped atomic.Int64
	mu      sync.RWMutex
	closed  bool
}

// NewSlowQueryDetector 创建慢查询检测器。
//
// 设计决策: AsyncHook 非 nil 时立即创建 pool（eager init），参数越界在构造时报错，
// 而不是运行时静默失效。
func NewSlowQueryDetector[T any](opts SlowQueryOptions[T]) (*SlowQueryDetector[T], error) {
	if opts.AsyncWorkerPoolSize <= 0 {
		opts.AsyncWorkerPoolSize = DefaultAsyncWorkerPoolSize
	}
	if opts.AsyncQueueSize <= 0 {
		opts.AsyncQueueSize = DefaultAsyncQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := &SlowQueryDetector[T]{options: opts}
	if opts.AsyncHook != nil {
		pool, err := xpool.New(
			opts.AsyncWorkerPoolSize,
			opts.AsyncQueueSize,
			opts.AsyncHook,
			xpool.WithLogger(opts.Logger),
			xpool.WithName("slow-query"),
		)
		if err != nil {
			return nil, fmt.Errorf("storageopt: create async pool: %w", err)
		}
		d.pool = pool
	}
	return d, nil
}

// MaybeSlowQuery 在 duration >= Threshold 时触发钩子，返回是否触发。
func (d *SlowQueryDetector[T]) MaybeSlowQuery(ctx context.Context, info T, duration time.Duration) bool {
	if d == nil || d.options.Threshold <= 0 || duration < d.options.Threshold {
		return false
	}

	if d.options.SyncHook != nil {
		d.options.SyncHook(ctx, info)
	}

	d.mu.RLock()
	if !d.closed && d.pool != nil {
		if err := d.pool.Submit(info); err != nil {
			d.dropped.Add(1)
		}
	}
	d.mu.RUnlock()

	return true
}

// Dropped 返回因异步队列满被丢弃的通知数。
func (d *SlowQueryDetector[T]) Dropped() int64 {
	return d.dropped.Load()
}

// Close 关闭检测器，等待已排队的异步通知处理完成。可重复调用。
//
// 设计决策: pool 引用在锁内取出，pool.Close() 在锁外执行，
// 排空期间并发的 MaybeSlowQuery 不会被写锁阻塞。
func (d *SlowQueryDetector[T]) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	pool := d.pool
	d.pool = nil
	d.mu.Unlock()

	if pool != nil {
		_ = pool.Close() //nolint:errcheck // 首次关闭不会返回 ErrPoolStopped
	}
}
