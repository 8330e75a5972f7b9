package xasync

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State 是单次异步调用的状态。
//
//	Scheduled → Cancelled
//	Scheduled → Running → Completed
//	Scheduled → Completed（执行器拒绝任务）
//
// Cancelled 与 Completed 为终态，不可逆。
type State int32

const (
	// StateScheduled 表示任务已提交、尚未开始。
	StateScheduled State = iota
	// StateCancelled 表示任务在开始前被取消，操作与回调都不会执行。
	StateCancelled
	// StateRunning 表示操作或回调正在执行。
	StateRunning
	// StateCompleted 表示回调已触发（或已返回/panic）。
	StateCompleted
)

// String 返回状态名。
func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateCancelled:
		return "cancelled"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Terminal 报告状态是否为终态。
func (s State) Terminal() bool {
	return s == StateCancelled || s == StateCompleted
}

// Handle 是异步调用的取消句柄，由异步方法同步返回。
//
// 取消标志单调：一旦设置不可清除，且对尚未开始的任务可见。
// 所有方法并发安全。
type Handle struct {
	id    uuid.UUID
	op    string
	state atomic.Int32

	// requested 为取消请求标志，独立于 state：开始后的取消同样记录。
	requested atomic.Bool

	done     chan struct{}
	doneOnce sync.Once

	// mu 保护 interrupt、stops 与 finished。
	mu        sync.Mutex
	interrupt context.CancelFunc
	stops     []func() bool
	finished  bool
}

func newHandle(op string) *Handle {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Handle{
		id:   id,
		op:   op,
		done: make(chan struct{}),
	}
}

// ID 返回调用的唯一标识（UUIDv7，按时间有序），用于日志与追踪关联。
func (h *Handle) ID() string {
	return h.id.String()
}

// Op 返回操作名。
func (h *Handle) Op() string {
	return h.op
}

// State 返回当前状态。
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Cancelled 报告是否请求过取消（无论是否生效）。
func (h *Handle) Cancelled() bool {
	return h.requested.Load()
}

// Cancel 请求取消。
//
// 任务尚未开始时取消生效：操作与回调都不会执行，Done 立即关闭。
// 任务已开始时默认不生效；调度器启用 WithInterrupt 时，
// 传给操作的 context 会被取消。
//
// 返回 true 表示回调保证不会触发。重复调用安全，结果一致。
func (h *Handle) Cancel() bool {
	h.requested.Store(true)
	if h.state.CompareAndSwap(int32(StateScheduled), int32(StateCancelled)) {
		h.finish()
		return true
	}

	h.mu.Lock()
	interrupt := h.interrupt
	h.mu.Unlock()
	if interrupt != nil {
		interrupt()
	}
	return h.State() == StateCancelled
}

// CancelAfter 在 d 之后请求取消。
// 返回的 stop 用于撤销定时器；调用结束后定时器自动撤销。
func (h *Handle) CancelAfter(d time.Duration) (stop func() bool) {
	t := time.AfterFunc(d, func() { h.Cancel() })
	h.addStop(t.Stop)
	return t.Stop
}

// CancelWhen 在 ctx 结束时请求取消。
// 返回的 stop 用于解除关联；调用结束后自动解除。
func (h *Handle) CancelWhen(ctx context.Context) (stop func() bool) {
	if ctx == nil {
		return func() bool { return false }
	}
	stop = context.AfterFunc(ctx, func() { h.Cancel() })
	h.addStop(stop)
	return stop
}

// Done 返回在调用进入终态后关闭的 channel。
// Completed 时在回调返回（或 panic）之后关闭。
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait 阻塞直到调用进入终态或 ctx 结束，返回最终状态。
func (h *Handle) Wait(ctx context.Context) (State, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-h.done:
		return h.State(), nil
	case <-ctx.Done():
		return h.State(), ctx.Err()
	}
}

func (h *Handle) addStop(stop func() bool) {
	h.mu.Lock()
	if h.finished {
		h.mu.Unlock()
		stop()
		return
	}
	h.stops = append(h.stops, stop)
	h.mu.Unlock()
}

// setInterrupt 登记运行中操作的取消函数。
// 若登记前已请求取消，立即中断，避免与 Cancel 竞争时丢失信号。
func (h *Handle) setInterrupt(cancel context.CancelFunc) {
	h.mu.Lock()
	h.interrupt = cancel
	h.mu.Unlock()
	if h.requested.Load() {
		cancel()
	}
}

// finish 关闭 done 并撤销定时器，仅生效一次。
func (h *Handle) finish() {
	h.doneOnce.Do(func() {
		h.mu.Lock()
		h.finished = true
		stops := h.stops
		h.stops = nil
		h.interrupt = nil
		h.mu.Unlock()

		for _, stop := range stops {
			stop()
		}
		close(h.done)
	})
}
