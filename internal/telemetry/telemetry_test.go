package telemetry_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/kiranshivaraju/reviewexec/internal/config"
	"github.com/kiranshivaraju/reviewexec/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	return out
}

func TestLogExporter_WritesFinishedSpans(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(telemetry.NewLogExporter(logger)))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tracer := tp.Tracer("telemetry-test")

	ctx, parent := tracer.Start(context.Background(), "review.execute")
	_, child := tracer.Start(ctx, "review.distribute")
	child.SetAttributes(attribute.Int("review.questions_dispatched", 3))
	child.SetStatus(codes.Error, "distribution failed")
	child.End()
	parent.End()

	recs := records(t, &buf)
	require.Len(t, recs, 2)

	assert.Equal(t, "span finished", recs[0]["msg"])
	assert.Equal(t, "review.distribute", recs[0]["span"])
	assert.Equal(t, "WARN", recs[0]["level"])
	assert.Equal(t, "Error", recs[0]["status"])
	assert.Equal(t, "distribution failed", recs[0]["status_description"])
	assert.Equal(t, "3", recs[0]["review.questions_dispatched"])
	assert.Equal(t, recs[1]["span_id"], recs[0]["parent_span_id"])
	assert.Equal(t, recs[1]["trace_id"], recs[0]["trace_id"])

	assert.Equal(t, "review.execute", recs[1]["span"])
	assert.Equal(t, "INFO", recs[1]["level"])
	assert.NotContains(t, recs[1], "parent_span_id")
}

func TestLogExporter_DropsAfterShutdown(t *testing.T) {
	var buf bytes.Buffer
	exp := telemetry.NewLogExporter(slog.New(slog.NewJSONHandler(&buf, nil)))
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	_, span := tp.Tracer("telemetry-test").Start(context.Background(), "before")
	span.End()

	require.NoError(t, exp.Shutdown(context.Background()))
	require.NoError(t, exp.ExportSpans(context.Background(), nil))
	_, span = tp.Tracer("telemetry-test").Start(context.Background(), "after")
	span.End()

	recs := records(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "before", recs[0]["span"])
}

func TestNewTracerProvider_LogExporterFlushes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	tp, err := telemetry.NewTracerProvider(config.TracingConfig{Exporter: "log", ServiceName: "reviewexec"}, logger)
	require.NoError(t, err)

	_, span := tp.Tracer("telemetry-test").Start(context.Background(), "review.ingest")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))
	require.NoError(t, tp.Shutdown(context.Background()))

	recs := records(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "review.ingest", recs[0]["span"])
}

func TestNewTracerProvider_Exporters(t *testing.T) {
	tp, err := telemetry.NewTracerProvider(config.TracingConfig{Exporter: "none"}, nil)
	require.NoError(t, err)
	require.NoError(t, tp.Shutdown(context.Background()))

	_, err = telemetry.NewTracerProvider(config.TracingConfig{Exporter: "zipkin"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zipkin")
}
