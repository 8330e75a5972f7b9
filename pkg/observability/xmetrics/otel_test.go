package xmetrics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// =============================================================================
// 测试辅助函数
// =============================================================================

func newTestObserver(t *testing.T, opts ...Option) (Observer, *tracetest.InMemoryExporter, *sdkmetric.ManualReader) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	opts = append([]Option{WithTracerProvider(tp), WithMeterProvider(mp)}, opts...)
	obs, err := NewOTelObserver(opts...)
	require.NoError(t, err)
	return obs, exporter, reader
}

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, status Status) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != metricOperationTotal {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key("status")); ok && v.AsString() == string(status) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

// =============================================================================
// NewOTelObserver
// =============================================================================

func TestNewOTelObserver_Default(t *testing.T) {
	obs, err := NewOTelObserver()
	require.NoError(t, err)
	require.NotNil(t, obs)
}

func TestNewOTelObserver_InvalidBuckets(t *testing.T) {
	_, err := NewOTelObserver(WithDurationBuckets(0.1, 0.05))
	assert.ErrorIs(t, err, ErrInvalidBuckets)

	_, err = NewOTelObserver(WithDurationBuckets(0.1, math.Inf(1)))
	assert.ErrorIs(t, err, ErrInvalidBuckets)

	_, err = NewOTelObserver(WithDurationBuckets(math.NaN()))
	assert.ErrorIs(t, err, ErrInvalidBuckets)
}

// =============================================================================
// Span 生命周期
// =============================================================================

func TestOTelObserver_SpanAndMetrics(t *testing.T) {
	obs, exporter, reader := newTestObserver(t, WithDurationBuckets(0.001, 0.01, 0.1, 1))

	ctx, span := obs.Start(context.Background(), SpanOptions{
		Component: "xmongo",
		Operation: "count",
		Kind:      KindClient,
		Attrs:     []Attr{String("db.collection", "users"), Int("n", 1)},
	})
	assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
	span.End(Result{Attrs: []Attr{Int64("count", 3)}})
	span.End(Result{Err: errors.New("second end ignored")})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "xmongo.count", spans[0].Name)
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, int64(1), collectSum(t, reader, StatusOK))
}

func TestOTelObserver_ErrorStatus(t *testing.T) {
	obs, exporter, reader := newTestObserver(t)

	_, span := obs.Start(context.Background(), SpanOptions{Component: "xasync", Operation: "insert"})
	span.End(Result{Err: errors.New("boom")})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.NotEmpty(t, spans[0].Events)
	assert.Equal(t, int64(1), collectSum(t, reader, StatusError))
}

func TestOTelObserver_CancelledStatus(t *testing.T) {
	obs, exporter, reader := newTestObserver(t)

	_, span := obs.Start(context.Background(), SpanOptions{Component: "xasync", Operation: "find"})
	span.End(Result{Status: StatusCancelled})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Equal(t, int64(1), collectSum(t, reader, StatusCancelled))
}

func TestOTelObserver_UnknownNames(t *testing.T) {
	obs, exporter, _ := newTestObserver(t)

	//nolint:staticcheck // 验证 nil ctx 处理
	ctx, span := obs.Start(nil, SpanOptions{})
	require.NotNil(t, ctx)
	span.End(Result{})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "unknown.unknown", spans[0].Name)
}

func TestAttrs(t *testing.T) {
	assert.Equal(t, attribute.Int64("wait_ns", int64(time.Millisecond)), Duration("wait_ns", time.Millisecond))
	assert.Equal(t, attribute.Bool("slow", true), Bool("slow", true))

	kept := validAttrs([]Attr{String("", "dropped"), Int("n", 1), {}})
	assert.Equal(t, []Attr{Int("n", 1)}, kept)
}

func TestOTelObserver_Inflight(t *testing.T) {
	obs, _, reader := newTestObserver(t)

	_, first := obs.Start(context.Background(), SpanOptions{Component: "xasync", Operation: "find"})
	_, second := obs.Start(context.Background(), SpanOptions{Component: "xasync", Operation: "find"})
	assert.Equal(t, int64(2), collectInflight(t, reader))

	first.End(Result{})
	first.End(Result{})
	assert.Equal(t, int64(1), collectInflight(t, reader))

	second.End(Result{Err: errors.New("boom")})
	assert.Equal(t, int64(0), collectInflight(t, reader))
}

func TestOTelObserver_MetricsSurviveCancelledContext(t *testing.T) {
	obs, _, reader := newTestObserver(t)

	ctx, cancel := context.WithCancel(context.Background())
	_, span := obs.Start(ctx, SpanOptions{Component: "xmongo", Operation: "find"})
	cancel()
	span.End(Result{Err: context.Canceled})

	assert.Equal(t, int64(1), collectSum(t, reader, StatusError))
}

func collectInflight(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var n int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != metricOperationInflight {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				n += dp.Value
			}
		}
	}
	return n
}
