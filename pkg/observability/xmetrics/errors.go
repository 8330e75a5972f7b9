package xmetrics

import "errors"

var (
	// ErrInvalidBuckets 表示耗时直方图的桶边界不是严格递增的有限值。
	ErrInvalidBuckets = errors.New("xmetrics: invalid histogram buckets")
	// ErrInstrument 表示 Meter 拒绝创建某个指标。
	ErrInstrument = errors.New("xmetrics: create instrument failed")
)
