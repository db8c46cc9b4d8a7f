package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// logExporter writes finished spans to the logger.
type logExporter struct {
	logger *zap.Logger
}

func (e logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		fields := []zap.Field{
			zap.String("span", s.Name()),
			zap.String("trace_id", s.SpanContext().TraceID().String()),
			zap.Time("at", s.StartTime()),
		}
		for _, kv := range s.Attributes() {
			fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
		}
		if s.Status().Description != "" {
			fields = append(fields, zap.String("status", s.Status().Description))
		}
		e.logger.Info("span", fields...)
	}
	return nil
}

func (e logExporter) Shutdown(context.Context) error { return nil }

// setupTracing installs a global tracer provider that batches spans into
// the log and returns its shutdown function.
func setupTracing(logger *zap.Logger) func(context.Context) error {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(logExporter{logger: logger.With(zap.String("component", "trace"))}),
		sdktrace.WithResource(resource.Default()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
