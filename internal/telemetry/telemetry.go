// Package telemetry builds the process tracer provider and the exporters it
// ships finished spans through.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kiranshivaraju/reviewexec/internal/config"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewTracerProvider returns a provider that batches spans to the configured exporter.
func NewTracerProvider(cfg config.TracingConfig, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
	}

	switch cfg.Exporter {
	case "log":
		opts = append(opts, sdktrace.WithBatcher(NewLogExporter(logger)))
	case "none", "":
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// LogExporter writes each finished span as one structured log record.
// Spans that ended with an error status are logged at WARN.
type LogExporter struct {
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
}

func NewLogExporter(logger *slog.Logger) *LogExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogExporter{logger: logger}
}

func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return nil
	}

	for _, s := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}

		args := []any{
			"span", s.Name(),
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"duration_ms", s.EndTime().Sub(s.StartTime()).Milliseconds(),
			"status", s.Status().Code.String(),
		}
		if s.Parent().IsValid() {
			args = append(args, "parent_span_id", s.Parent().SpanID().String())
		}
		if d := s.Status().Description; d != "" {
			args = append(args, "status_description", d)
		}
		for _, kv := range s.Attributes() {
			args = append(args, string(kv.Key), kv.Value.Emit())
		}

		level := slog.LevelInfo
		if s.Status().Code == codes.Error {
			level = slog.LevelWarn
		}
		e.logger.Log(ctx, level, "span finished", args...)
	}
	return nil
}

// Shutdown stops the exporter. Later exports are dropped.
func (e *LogExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	return nil
}

var _ sdktrace.SpanExporter = (*LogExporter)(nil)
