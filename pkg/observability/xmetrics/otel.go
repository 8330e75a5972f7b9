package xmetrics

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultInstrumentationName = "github.com/omeyang/xmgo/xmetrics"

	metricOperationTotal    = "xmgo.operation.total"
	metricOperationDuration = "xmgo.operation.duration"
	metricOperationInflight = "xmgo.operation.inflight"

	attrComponent = attribute.Key("component")
	attrOperation = attribute.Key("operation")
	attrStatus    = attribute.Key("status")
	attrCancelled = attribute.Key("cancelled")
)

type otelConfig struct {
	name    string
	tracers trace.TracerProvider
	meters  metric.MeterProvider
	buckets []float64
}

// Option 配置 NewOTelObserver。
type Option func(*otelConfig)

// WithInstrumentationName 设置 Tracer 与 Meter 的名称。空串被忽略。
func WithInstrumentationName(name string) Option {
	return func(c *otelConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithTracerProvider 替换全局 TracerProvider。nil 被忽略。
func WithTracerProvider(p trace.TracerProvider) Option {
	return func(c *otelConfig) {
		if p != nil {
			c.tracers = p
		}
	}
}

// WithMeterProvider 替换全局 MeterProvider。nil 被忽略。
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(c *otelConfig) {
		if p != nil {
			c.meters = p
		}
	}
}

// WithDurationBuckets 设置耗时直方图的桶边界，单位秒。
func WithDurationBuckets(bounds ...float64) Option {
	return func(c *otelConfig) { c.buckets = bounds }
}

// NewOTelObserver 创建写入 OpenTelemetry 的 Observer。
//
// 每个操作产生一个名为 "<component>.<operation>" 的跨度，并记录三个指标：
// 按 status 计数的 xmgo.operation.total、耗时直方图 xmgo.operation.duration、
// 以及正在执行的操作数 xmgo.operation.inflight。
func NewOTelObserver(opts ...Option) (Observer, error) {
	cfg := otelConfig{
		name:    defaultInstrumentationName,
		tracers: otel.GetTracerProvider(),
		meters:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := checkBuckets(cfg.buckets); err != nil {
		return nil, err
	}

	meter := cfg.meters.Meter(cfg.name)
	o := &otelObserver{tracer: cfg.tracers.Tracer(cfg.name)}

	var err error
	if o.total, err = meter.Int64Counter(metricOperationTotal,
		metric.WithDescription("completed operations by status"), metric.WithUnit("{operation}")); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstrument, metricOperationTotal, err)
	}

	histOpts := []metric.Float64HistogramOption{
		metric.WithDescription("operation latency"), metric.WithUnit("s"),
	}
	if len(cfg.buckets) > 0 {
		histOpts = append(histOpts, metric.WithExplicitBucketBoundaries(cfg.buckets...))
	}
	if o.duration, err = meter.Float64Histogram(metricOperationDuration, histOpts...); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstrument, metricOperationDuration, err)
	}

	if o.inflight, err = meter.Int64UpDownCounter(metricOperationInflight,
		metric.WithDescription("operations currently executing"), metric.WithUnit("{operation}")); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstrument, metricOperationInflight, err)
	}
	return o, nil
}

func checkBuckets(bounds []float64) error {
	prev := math.Inf(-1)
	for i, b := range bounds {
		if math.IsNaN(b) || math.IsInf(b, 0) || b <= prev {
			return fmt.Errorf("%w: bound[%d]=%v", ErrInvalidBuckets, i, b)
		}
		prev = b
	}
	return nil
}

type otelObserver struct {
	tracer   trace.Tracer
	total    metric.Int64Counter
	duration metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}

func (o *otelObserver) Start(ctx context.Context, opts SpanOptions) (context.Context, Span) {
	ctx = orBackground(ctx)
	component := nonEmpty(opts.Component)
	operation := nonEmpty(opts.Operation)

	ctx, span := o.tracer.Start(ctx, component+"."+operation,
		trace.WithSpanKind(opts.Kind),
		trace.WithAttributes(attrComponent.String(component), attrOperation.String(operation)),
		trace.WithAttributes(validAttrs(opts.Attrs)...),
	)

	s := &otelSpan{
		observer: o,
		span:     span,
		// 指标在调用方 ctx 取消后仍要落地。
		ctx:   context.WithoutCancel(ctx),
		base:  []attribute.KeyValue{attrComponent.String(component), attrOperation.String(operation)},
		start: time.Now(),
	}
	o.inflight.Add(s.ctx, 1, metric.WithAttributes(s.base...))
	return ctx, s
}

func nonEmpty(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

type otelSpan struct {
	observer *otelObserver
	span     trace.Span
	ctx      context.Context
	base     []attribute.KeyValue
	start    time.Time
	ended    atomic.Bool
}

// End 只生效一次，重复调用被忽略。
func (s *otelSpan) End(result Result) {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	elapsed := time.Since(s.start).Seconds()
	status := result.status()

	switch status {
	case StatusError:
		msg := "operation failed"
		if result.Err != nil {
			s.span.RecordError(result.Err)
			msg = result.Err.Error()
		}
		s.span.SetStatus(codes.Error, msg)
	case StatusCancelled:
		s.span.SetAttributes(attrCancelled.Bool(true))
	default:
		s.span.SetStatus(codes.Ok, "")
	}
	if attrs := validAttrs(result.Attrs); len(attrs) > 0 {
		s.span.SetAttributes(attrs...)
	}
	s.span.End()

	o := s.observer
	o.inflight.Add(s.ctx, -1, metric.WithAttributes(s.base...))
	withStatus := metric.WithAttributes(append(s.base[:len(s.base):len(s.base)], attrStatus.String(string(status)))...)
	o.total.Add(s.ctx, 1, withStatus)
	o.duration.Record(s.ctx, elapsed, withStatus)
}
