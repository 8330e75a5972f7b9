package xlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{" INFO ", LevelInfo},
		{"", LevelInfo},
		{"warning", LevelWarn},
		{"Warn", LevelWarn},
		{"error", LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("verbose")
	assert.ErrorIs(t, err, ErrUnknownLevel)
}

func TestLevel_Text(t *testing.T) {
	var l Level
	require.NoError(t, l.UnmarshalText([]byte("warn")))
	assert.Equal(t, LevelWarn, l)
	b, err := l.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "WARN", string(b))
	assert.Error(t, l.UnmarshalText([]byte("loud")))
	assert.Equal(t, "INFO+2", Level(2).String())
}

func TestBuilder_JSONWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, level, cleanup, err := New().
		SetOutput(&buf).
		SetFormat("JSON").
		SetLevelString("debug").
		SetAttrs(slog.String("service", "xmgoctl")).
		Build()
	require.NoError(t, err)
	defer func() { _ = cleanup() }()

	logger.Debug("hello", Component("xmongo"), Operation("count"), Err(errors.New("boom")), Duration(time.Second))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "xmgoctl", rec["service"])
	assert.Equal(t, "xmongo", rec[KeyComponent])
	assert.Equal(t, "count", rec[KeyOperation])
	assert.Equal(t, "boom", rec[KeyError])
	assert.Equal(t, "1s", rec[KeyDuration])

	buf.Reset()
	level.Set(slog.LevelError)
	logger.Info("suppressed")
	assert.Empty(t, buf.String())
}

func TestBuilder_Errors(t *testing.T) {
	_, _, _, err := New().SetFormat("xml").Build()
	assert.ErrorIs(t, err, ErrUnknownFormat)

	// first-error-wins
	_, _, _, err = New().SetLevelString("loud").SetFormat("xml").Build()
	assert.ErrorIs(t, err, ErrUnknownLevel)

	_, _, _, err = New().SetRotation("  ", RotationOptions{}).Build()
	assert.ErrorIs(t, err, ErrEmptyFilename)
}

func TestBuilder_ReplaceAttr(t *testing.T) {
	var buf bytes.Buffer
	logger, _, _, err := New().
		SetOutput(&buf).
		SetReplaceAttr(func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == "password" {
				return slog.String(a.Key, "***")
			}
			return a
		}).
		Build()
	require.NoError(t, err)

	logger.Info("login", slog.String("password", "hunter2"))
	assert.Contains(t, buf.String(), "password=***")
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestBuilder_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, _, cleanup, err := New().SetRotation(path, RotationOptions{MaxSizeMB: 1}).Build()
	require.NoError(t, err)

	logger.Info("rotated", slog.Any(KeyDatabase, "app"))
	require.NoError(t, cleanup())
	require.NoError(t, cleanup(), "cleanup must be idempotent")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rotated")
}

func TestEnrichHandler(t *testing.T) {
	_, err := NewEnrichHandler(nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	var buf bytes.Buffer
	h, err := NewEnrichHandler(slog.NewTextHandler(&buf, nil))
	require.NoError(t, err)
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("k", "v")}))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	logger.InfoContext(ctx, "traced")
	out := buf.String()
	assert.Contains(t, out, "trace_id=4bf92f3577b34da6a3ce929d0e0e4736")
	assert.Contains(t, out, "span_id=00f067aa0ba902b7")
	assert.Contains(t, out, "k=v")

	buf.Reset()
	logger.InfoContext(context.Background(), "untraced")
	assert.NotContains(t, buf.String(), "trace_id")

	grouped := slog.New(h.WithGroup("g"))
	buf.Reset()
	grouped.Info("grouped", slog.Int("n", 1))
	assert.Contains(t, buf.String(), "g.n=1")
}

func TestNamespace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("op", Namespace("app", "users")...)
	assert.Contains(t, buf.String(), "db.name=app")
	assert.Contains(t, buf.String(), "db.collection=users")
	assert.Equal(t, slog.Attr{}, Err(nil))
}
