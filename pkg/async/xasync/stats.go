package xasync

import "sync/atomic"

// Stats 是调度器的累计计数。
type Stats struct {
	// Submitted 为调用总数。
	Submitted int64
	// Rejected 为执行器拒绝的调用数。
	Rejected int64
	// Cancelled 为开始前被取消、最终未执行的调用数。
	Cancelled int64
	// Completed 为已执行操作的调用数（含失败）。
	Completed int64
	// Failed 为操作返回错误或 panic 的调用数。
	Failed int64
	// Panics 为操作 panic 与拒绝路径上回调 panic 的次数。
	Panics int64
}

type counters struct {
	submitted atomic.Int64
	rejected  atomic.Int64
	cancelled atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panics    atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Submitted: c.submitted.Load(),
		Rejected:  c.rejected.Load(),
		Cancelled: c.cancelled.Load(),
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
		Panics:    c.panics.Load(),
	}
}
