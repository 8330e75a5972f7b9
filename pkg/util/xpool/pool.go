package xpool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
)

const (
	// maxWorkers worker 数量上限。
	maxWorkers = 1 << 16

	// maxQueueSize 队列容量上限。
	maxQueueSize = 1 << 24
)

// 编译期断言：Pool 满足 io.Closer 关闭契约。
var _ io.Closer = (*Pool[struct{}])(nil)

// Pool 是有界的泛型 worker pool。
//
// 创建后 worker 立即启动；Submit 永不阻塞。
// 关闭时先拒绝新任务，再排空队列中已接收的任务。
type Pool[T any] struct {
	handler func(T)
	queue   chan T
	opts    options

	// mu 保护 closed 与 queue 的关闭，避免 Submit 向已关闭 channel 发送。
	mu     sync.RWMutex
	closed bool

	wg   sync.WaitGroup
	done chan struct{}
}

// New 创建并启动 worker pool。
//
// workers 取值范围 [1, 65536]，queueSize 取值范围 [1, 16777216]，
// 超出范围返回错误而非 panic。handler 不能为 nil。
func New[T any](workers, queueSize int, handler func(T), opts ...Option) (*Pool[T], error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if workers < 1 || workers > maxWorkers {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}
	if queueSize < 1 || queueSize > maxQueueSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQueueSize, queueSize)
	}

	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	p := &Pool[T]{
		handler: handler,
		queue:   make(chan T, queueSize),
		opts:    o,
		done:    make(chan struct{}),
	}

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()

	return p, nil
}

// NewFuncPool 创建以 func() 为任务类型的 pool，任务即处理逻辑本身。
//
// 返回的 *Pool[func()] 的 Submit(func()) error 方法签名与
// xasync.Executor 一致，可直接作为异步调度的执行器注入。
func NewFuncPool(workers, queueSize int, opts ...Option) (*Pool[func()], error) {
	return New(workers, queueSize, func(task func()) {
		if task != nil {
			task()
		}
	}, opts...)
}

// worker 从队列读取任务直到队列关闭。
// 不监听关闭信号，确保关闭前已接收的任务都会被处理。
func (p *Pool[T]) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.safeHandle(task)
	}
}

// safeHandle 执行 handler 并恢复 panic，单个任务失败不影响 worker。
func (p *Pool[T]) safeHandle(task T) {
	defer func() {
		if r := recover(); r != nil {
			attrs := []any{
				slog.Any("panic", r),
				slog.String("task_type", fmt.Sprintf("%T", task)),
				slog.String("stack", string(debug.Stack())),
			}
			if p.opts.logTaskValue {
				attrs = append(attrs, slog.Any("task", task))
			}
			if p.opts.name != "" {
				attrs = append(attrs, slog.String("pool", p.opts.name))
			}
			p.opts.logger.Error("xpool: worker panic recovered", attrs...)
		}
	}()
	p.handler(task)
}

// Submit 提交任务。
//
// 非阻塞：队列满时返回 ErrQueueFull，pool 关闭后返回 ErrPoolStopped。
func (p *Pool[T]) Submit(task T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolStopped
	}
	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown 停止接收新任务并等待已接收任务处理完成。
//
// ctx 到期时立即返回 ctx.Err()，残留 worker 继续在后台排空队列，
// 可通过 Done() 等待其最终退出。重复调用返回 ErrPoolStopped。
// 不可在 handler 内调用，否则会死锁。
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 等价于 Shutdown(context.Background())。
func (p *Pool[T]) Close() error {
	return p.Shutdown(context.Background())
}

// Done 返回在所有 worker 退出后关闭的 channel。
func (p *Pool[T]) Done() <-chan struct{} {
	return p.done
}

// Pending 返回队列中尚未被 worker 取走的任务数。
func (p *Pool[T]) Pending() int {
	return len(p.queue)
}

// QueueSize 返回队列容量。
func (p *Pool[T]) QueueSize() int {
	return cap(p.queue)
}
