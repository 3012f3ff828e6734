// Package telemetry defines the logging, metrics, and tracing seams used
// throughout the orchestrator and agents: small interfaces plus no-op
// implementations so components can be constructed and tested without a
// live backend, and concrete zap/otel-backed implementations for
// production wiring.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Field is a structured logging key/value pair, kept provider-agnostic so
// callers do not import zap directly.
type Field struct {
	Key   string
	Value any
}

// F builds a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Logger is the structured logging surface used across the module.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// With returns a Logger that always includes fields, used to bind a
	// request ID / agent name for the lifetime of one orchestration run.
	With(fields ...Field) Logger
}

// Tracer starts spans for agent calls and orchestration phases.
type Tracer interface {
	Start(ctx context.Context, spanName string) (context.Context, func())
}

// Metrics records counters/histograms for cache hits, agent attempts, and
// phase timing. It is ambient observability, not gated by any feature
// Non-goal.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveDuration(name string, labels map[string]string, seconds float64)
}

// zapLogger adapts *zap.Logger to the Logger interface.
type zapLogger struct{ l *zap.Logger }

// NewZapLogger wraps an existing *zap.Logger.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &zapLogger{l: l}
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

func (z *zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, toZapFields(fields)...) }
func (z *zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, toZapFields(fields)...) }
func (z *zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, toZapFields(fields)...) }
func (z *zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, toZapFields(fields)...) }
func (z *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{l: z.l.With(toZapFields(fields)...)}
}

// NoopLogger discards everything; used by tests and components built before
// a real logger is wired in.
type NoopLogger struct{}

// NewNoopLogger constructs a NoopLogger.
func NewNoopLogger() Logger { return NoopLogger{} }

func (NoopLogger) Debug(string, ...Field) {}
func (NoopLogger) Info(string, ...Field)  {}
func (NoopLogger) Warn(string, ...Field)  {}
func (NoopLogger) Error(string, ...Field) {}
func (n NoopLogger) With(...Field) Logger { return n }

// otelTracer adapts an OpenTelemetry trace.Tracer to the Tracer interface.
type otelTracer struct{ t trace.Tracer }

// NewOtelTracer wraps an OpenTelemetry tracer.
func NewOtelTracer(t trace.Tracer) Tracer { return &otelTracer{t: t} }

func (o *otelTracer) Start(ctx context.Context, spanName string) (context.Context, func()) {
	spanCtx, span := o.t.Start(ctx, spanName)
	return spanCtx, func() { span.End() }
}

// NoopTracer starts no spans.
type NoopTracer struct{}

// NewNoopTracer constructs a NoopTracer.
func NewNoopTracer() Tracer { return NoopTracer{} }

func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

// NewNoopMetrics constructs a NoopMetrics.
func NewNoopMetrics() Metrics { return NoopMetrics{} }

func (NoopMetrics) IncCounter(string, map[string]string)               {}
func (NoopMetrics) ObserveDuration(string, map[string]string, float64) {}

// attrsFromLabels converts a label map into otel attributes, used by
// otel-backed Metrics implementations built on top of this package.
func attrsFromLabels(labels map[string]string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		out = append(out, attribute.String(k, v))
	}
	return out
}

// otelMetrics adapts an OpenTelemetry metric.Meter to the Metrics interface.
// Counters and histograms are created lazily and cached by name, since the
// otel API requires one instrument handle per metric name rather than
// accepting the name at record time.
type otelMetrics struct {
	meter      metric.Meter
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewOtelMetrics wraps an OpenTelemetry meter.
func NewOtelMetrics(meter metric.Meter) Metrics {
	return &otelMetrics{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (m *otelMetrics) IncCounter(name string, labels map[string]string) {
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Int64Counter(name)
		if err != nil {
			return
		}
		m.counters[name] = c
	}
	c.Add(context.Background(), 1, metric.WithAttributes(attrsFromLabels(labels)...))
}

func (m *otelMetrics) ObserveDuration(name string, labels map[string]string, seconds float64) {
	h, ok := m.histograms[name]
	if !ok {
		var err error
		h, err = m.meter.Float64Histogram(name)
		if err != nil {
			return
		}
		m.histograms[name] = h
	}
	h.Record(context.Background(), seconds, metric.WithAttributes(attrsFromLabels(labels)...))
}
