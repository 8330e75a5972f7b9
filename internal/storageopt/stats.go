package storageopt

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// HealthCounter 健康检查计数器。
type HealthCounter struct {
	pingCount  atomic.Int64
	pingErrors atomic.Int64
}

// IncPing 增加 ping 计数。
func (h *HealthCounter) IncPing() {
	h.pingCount.Add(1)
}

// IncPingError 增加 ping 错误计数。
func (h *HealthCounter) IncPingError() {
	h.pingErrors.Add(1)
}

// PingCount 返回 ping 计数。
func (h *HealthCounter) PingCount() int64 {
	return h.pingCount.Load()
}

// PingErrors 返回 ping 错误计数。
func (h *HealthCounter) PingErrors() int64 {
	return h.pingErrors.Load()
}

// SlowQueryCounter 慢查询计数器。
type SlowQueryCounter struct {
	count atomic.Int64
}

// Inc 增加慢查询计数。
func (s *SlowQueryCounter) Inc() {
	s.count.Add(1)
}

// Count 返回慢查询计数。
func (s *SlowQueryCounter) Count() int64 {
	return s.count.Load()
}

// OpStats 单个操作名的累计计数。
type OpStats struct {
	Name   string
	Calls  int64
	Errors int64
}

type opCounter struct {
	calls  atomic.Int64
	errors atomic.Int64
}

// OpCounter 按操作名（find、insert、update 等）统计调用与失败次数。
// 零值可用，并发安全。
type OpCounter struct {
	ops sync.Map // map[string]*opCounter
}

// Record 记录一次操作，err != nil 时同时计入失败。
func (c *OpCounter) Record(op string, err error) {
	v, ok := c.ops.Load(op)
	if !ok {
		v, _ = c.ops.LoadOrStore(op, &opCounter{})
	}
	oc := v.(*opCounter)
	oc.calls.Add(1)
	if err != nil {
		oc.errors.Add(1)
	}
}

// Snapshot 返回按操作名排序的计数快照。
func (c *OpCounter) Snapshot() []OpStats {
	var out []OpStats
	c.ops.Range(func(k, v any) bool {
		oc := v.(*opCounter)
		out = append(out, OpStats{Name: k.(string), Calls: oc.calls.Load(), Errors: oc.errors.Load()})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MeasureOperation 测量操作耗时，storage 子包统一的度量入口。
func MeasureOperation(start time.Time) time.Duration {
	return time.Since(start)
}
