package xmetrics

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Kind 是跨度类型，与 OTel 的 SpanKind 同值。
type Kind = trace.SpanKind

const (
	// KindInternal 用于进程内的调度与回调派发。
	KindInternal = trace.SpanKindInternal
	// KindClient 用于对 MongoDB 的请求。
	KindClient = trace.SpanKindClient
)

// Status 是一次操作的结局，写入指标的 status 属性。
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
	// StatusCancelled 表示操作在开始执行前被取消，既非成功也非失败。
	StatusCancelled Status = "cancelled"
)

// SpanOptions 描述要开始的操作。
type SpanOptions struct {
	Component string
	Operation string
	Kind      Kind
	Attrs     []Attr
}

// Result 描述操作的结局。Status 为空时由 Err 推导。
type Result struct {
	Status Status
	Err    error
	Attrs  []Attr
}

func (r Result) status() Status {
	switch {
	case r.Status != "":
		return r.Status
	case r.Err != nil:
		return StatusError
	default:
		return StatusOK
	}
}

// Span 是进行中的一次观测。
type Span interface {
	End(result Result)
}

// Observer 为每次操作开启一个 Span。
type Observer interface {
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// NoopObserver 不记录任何东西，是调度器与集合包装器的默认值。
type NoopObserver struct{}

func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	return orBackground(ctx), NoopSpan{}
}

// NoopSpan 忽略 End。
type NoopSpan struct{}

func (NoopSpan) End(Result) {}

// Start 通过 observer 开启观测。observer 为 nil 或返回 nil 值时退化为空跨度，
// 因此调用方可以无条件 defer span.End(...)。
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	ctx = orBackground(ctx)
	if observer == nil {
		return ctx, NoopSpan{}
	}
	next, span := observer.Start(ctx, opts)
	if next == nil {
		next = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return next, span
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
