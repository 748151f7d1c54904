package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AnatoleLucet/rewind/internal"
)

func TestLogger(t *testing.T) {
	t.Run("writes json at the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log, level := NewLogger(LogConfig{Level: "warn", Format: "json", Output: &buf})

		log.Info("hidden")
		log.Warn("shown", "node", "x")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), `"msg":"shown"`)
		assert.Contains(t, buf.String(), `"node":"x"`)

		level.Set(slog.LevelDebug)
		log.Debug("now visible")
		assert.Contains(t, buf.String(), "now visible")
	})

	t.Run("parses levels", func(t *testing.T) {
		assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
		assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
		assert.Equal(t, slog.LevelError, ParseLevel("error"))
		assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "core-1")

	m.ObserveFlush(internal.FlushStats{Recomputed: 3, EffectsRun: 2, Duration: time.Millisecond})
	m.ObserveFlush(internal.FlushStats{Recomputed: 1})
	m.ObserveNodes(internal.Stats{Cells: 2, Computeds: 1})
	m.Rewinds.WithLabelValues("count", "ok").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Propagations))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Recomputes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EffectRuns))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Nodes.WithLabelValues("cell")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rewinds.WithLabelValues("count", "ok")))

	// a second core can share the registry
	require.NotPanics(t, func() { NewMetrics(reg, "core-2") })

	n, err := testutil.GatherAndCount(reg, "rewind_propagations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTracer(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tr := NewTracer(tp)

	_, span := tr.Start(context.Background(), "rewind", attribute.Int("steps", 2))
	End(span, errors.New("history exhausted"))

	_, span = tr.Start(context.Background(), "snapshot")
	End(span, nil)

	tr.Record(context.Background(), "flush", time.Now().Add(-time.Second), attribute.Int("recomputed", 3))

	spans := rec.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "rewind", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Int("steps", 2))
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
	assert.Equal(t, "flush", spans[2].Name())
	assert.GreaterOrEqual(t, spans[2].EndTime().Sub(spans[2].StartTime()), time.Second)
}
