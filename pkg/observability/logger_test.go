package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		assert.Zero(t, buf.Len())
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		entry := decodeEntry(t, &buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "info message", entry["msg"])
	})

	t.Run("warn and error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		assert.NotZero(t, buf.Len())

		buf.Reset()
		logger.Error("error message")
		assert.NotZero(t, buf.Len())
	})
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("user_id", "u-1").
		WithFields(map[string]interface{}{"role_id": "teacher", "count": 2}).
		WithError(errors.New("boom")).
		Info("message")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "u-1", entry["user_id"])
	assert.Equal(t, "teacher", entry["role_id"])
	assert.Equal(t, float64(2), entry["count"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_WithErrorNil(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	assert.Same(t, logger, logger.WithError(nil))
}

func TestLogger_FieldOrderAndIsolation(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(InfoLevel, &buf)

	base.WithFields(map[string]interface{}{"b": 2, "a": 1, "c": 3}).Info("ordered")
	line := buf.String()
	assert.Less(t, strings.Index(line, `"a":1`), strings.Index(line, `"b":2`))
	assert.Less(t, strings.Index(line, `"b":2`), strings.Index(line, `"c":3`))

	buf.Reset()
	_ = base.WithField("request", "r-1")
	base.Info("plain")
	assert.NotContains(t, decodeEntry(t, &buf), "request", "derived loggers do not leak fields")
}

func TestLogger_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(DebugLevel, &buf).Debug("visible")
	assert.Equal(t, "DEBUG", decodeEntry(t, &buf)["level"])

	buf.Reset()
	NewLogger(ErrorLevel, &buf).Warn("hidden")
	assert.Zero(t, buf.Len())
}

func TestLogger_WithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("no span", func(t *testing.T) {
		assert.Same(t, logger, logger.WithTraceContext(context.Background()))
	})

	t.Run("recording span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		buf.Reset()
		logger.WithTraceContext(ctx).Info("traced")

		entry := decodeEntry(t, &buf)
		assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
		assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{" error ", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "INFO", InfoLevel.String())
	assert.Equal(t, "WARN", WarnLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
	assert.Equal(t, "INFO", LogLevel(42).String())
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	require.NotNil(t, logger)
	logger.WithField("k", "v").Error("discarded")
	assert.Same(t, logger, logger.WithTraceContext(context.Background()))
}
