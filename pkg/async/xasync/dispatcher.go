package xasync

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"

	"github.com/omeyang/xmgo/pkg/observability/xmetrics"
)

// Dispatcher 将同步操作调度到执行器上，并负责结果投递。
//
// Dispatcher 不持有执行器的生命周期：关闭执行器由调用方负责。
type Dispatcher struct {
	exec  Executor
	opts  options
	stats counters
}

// New 创建调度器。
func New(exec Executor, opts ...Option) (*Dispatcher, error) {
	if exec == nil {
		return nil, ErrNilExecutor
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Dispatcher{exec: exec, opts: o}, nil
}

// Stats 返回累计计数快照。
func (d *Dispatcher) Stats() Stats {
	return d.stats.snapshot()
}

// Call 异步执行返回值的操作，完成后以 (value, error) 回调。
//
// 失败时 value 为 T 的零值。cb 可为 nil，此时结果被丢弃，错误记录日志；
// 成功的值若实现 Close(context.Context) error（如游标），丢弃前先关闭。
func Call[T any](ctx context.Context, d *Dispatcher, op string, fn func(context.Context) (T, error), cb func(T, error)) *Handle {
	if fn == nil {
		fn = func(context.Context) (T, error) {
			var zero T
			return zero, ErrNilOperation
		}
	}

	var value T
	return d.dispatch(ctx, op,
		func(ctx context.Context) error {
			v, err := fn(ctx)
			value = v
			return err
		},
		func(err error) {
			r := newResult(value, err)
			if cb == nil {
				d.discardValue(op, r.Value, r.Err)
				return
			}
			cb(r.Value, r.Err)
		})
}

// Exec 异步执行不返回值的操作，完成后以 error 回调。
func Exec(ctx context.Context, d *Dispatcher, op string, fn func(context.Context) error, cb func(error)) *Handle {
	if fn == nil {
		fn = func(context.Context) error { return ErrNilOperation }
	}
	return d.dispatch(ctx, op, fn, func(err error) {
		if cb == nil {
			d.discard(op, err)
			return
		}
		cb(err)
	})
}

// dispatch 提交任务并返回句柄，从不阻塞、从不 panic。
func (d *Dispatcher) dispatch(ctx context.Context, op string, run func(context.Context) error, deliver func(error)) *Handle {
	if ctx == nil {
		ctx = context.Background()
	}
	h := newHandle(op)
	d.stats.submitted.Add(1)

	err := d.exec.Submit(func() { d.execute(ctx, h, run, deliver) })
	if err == nil {
		return h
	}

	// 执行器拒绝：操作不执行，回调在独立 goroutine 上收到 ErrRejected，
	// 保证回调不在调用方 goroutine 上运行。
	if !h.state.CompareAndSwap(int32(StateScheduled), int32(StateCompleted)) {
		return h
	}
	d.stats.rejected.Add(1)
	rejectErr := fmt.Errorf("%w: %w", ErrRejected, err)
	d.opts.logger.Warn("xasync: task rejected",
		slog.String("component", d.opts.name),
		slog.String("op", op),
		slog.String("handle_id", h.ID()),
		slog.Any("error", err))
	go func() {
		defer h.finish()
		defer d.recoverCallback(h)
		deliver(rejectErr)
	}()
	return h
}

// recoverCallback 恢复拒绝路径上的回调 panic。
// 这里没有执行器可以承接 panic，按 xpool 的策略记录日志后丢弃。
func (d *Dispatcher) recoverCallback(h *Handle) {
	r := recover()
	if r == nil {
		return
	}
	d.stats.panics.Add(1)
	d.opts.logger.Error("xasync: callback panic recovered",
		slog.String("component", d.opts.name),
		slog.String("op", h.op),
		slog.String("handle_id", h.ID()),
		slog.Any("panic", r),
		slog.String("stack", string(debug.Stack())))
}

// execute 是任务体：取消检查严格先于操作执行。
func (d *Dispatcher) execute(ctx context.Context, h *Handle, run func(context.Context) error, deliver func(error)) {
	if !h.state.CompareAndSwap(int32(StateScheduled), int32(StateRunning)) {
		d.stats.cancelled.Add(1)
		_, span := xmetrics.Start(ctx, d.opts.observer, d.spanOptions(h))
		span.End(xmetrics.Result{Status: xmetrics.StatusCancelled})
		d.opts.logger.Debug("xasync: cancelled before start",
			slog.String("component", d.opts.name),
			slog.String("op", h.op),
			slog.String("handle_id", h.ID()))
		return
	}

	// 回调 panic 时同样进入 Completed 并关闭 Done，随后 panic 继续传播。
	defer func() {
		h.state.Store(int32(StateCompleted))
		h.finish()
	}()

	opCtx, span := xmetrics.Start(ctx, d.opts.observer, d.spanOptions(h))
	if d.opts.interrupt {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithCancel(opCtx)
		defer cancel()
		h.setInterrupt(cancel)
	}

	err := d.safeRun(opCtx, h, run)
	span.End(xmetrics.Result{Err: err})
	d.stats.completed.Add(1)
	if err != nil {
		d.stats.failed.Add(1)
	}

	// 回调在 recover 之外调用：回调自身 panic 不会被当作操作失败再次回调。
	deliver(err)
}

// safeRun 执行操作，将 panic 转换为 *PanicError。
func (d *Dispatcher) safeRun(ctx context.Context, h *Handle, run func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.stats.panics.Add(1)
			pe := &PanicError{Op: h.op, Value: r, Stack: debug.Stack()}
			d.opts.logger.Error("xasync: operation panic recovered",
				slog.String("component", d.opts.name),
				slog.String("op", h.op),
				slog.String("handle_id", h.ID()),
				slog.Any("panic", r),
				slog.String("stack", string(pe.Stack)))
			err = pe
		}
	}()
	return run(ctx)
}

func (d *Dispatcher) spanOptions(h *Handle) xmetrics.SpanOptions {
	return xmetrics.SpanOptions{
		Component: d.opts.name,
		Operation: h.op,
		Kind:      xmetrics.KindInternal,
		Attrs:     []xmetrics.Attr{xmetrics.String("handle_id", h.ID())},
	}
}

// closer 是需要显式释放的结果，如服务端游标。
type closer interface {
	Close(ctx context.Context) error
}

// discardValue 丢弃无回调的结果值，可关闭的值先关闭，避免泄漏服务端资源。
func (d *Dispatcher) discardValue(op string, value any, err error) {
	if c, ok := value.(closer); ok && err == nil && !isNilValue(value) {
		if closeErr := c.Close(context.Background()); closeErr != nil {
			d.discard(op, fmt.Errorf("close discarded result: %w", closeErr))
		}
	}
	d.discard(op, err)
}

func isNilValue(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return v == nil
	}
}

// discard 处理无回调的调用结果：失败时记录日志。
func (d *Dispatcher) discard(op string, err error) {
	if err == nil {
		return
	}
	d.opts.logger.Warn("xasync: outcome discarded, no callback",
		slog.String("component", d.opts.name),
		slog.String("op", op),
		slog.Any("error", err))
}
