package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type (
	// SlogLogger is a Logger backed by log/slog. The teacher delegates to
	// goa.design/clue/log, a Goa-framework-specific logger this module does
	// not retain (see DESIGN.md); slog is the stdlib-adjacent equivalent
	// every other example repo in the pack reaches for.
	SlogLogger struct {
		logger *slog.Logger
	}

	// OtelMetrics is a Metrics recorder backed by the OTEL metrics API,
	// mirroring the teacher's ClueMetrics wrapper.
	OtelMetrics struct {
		meter    metric.Meter
		counters map[string]metric.Float64Counter
	}

	// OtelTracer is a Tracer backed by the OTEL tracing API, mirroring the
	// teacher's ClueTracer wrapper.
	OtelTracer struct {
		tracer trace.Tracer
	}

	otelSpan struct {
		span trace.Span
	}
)

// NewSlogLogger wraps an *slog.Logger (or slog.Default() if nil) as a Logger.
func NewSlogLogger(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// Debug logs at debug level with the run's context baked into attributes by
// the caller (the kernel never reads values back out of ctx here).
func (l *SlogLogger) Debug(_ context.Context, msg string, keyvals ...any) {
	l.logger.Debug(msg, keyvals...)
}

// Info logs at info level.
func (l *SlogLogger) Info(_ context.Context, msg string, keyvals ...any) {
	l.logger.Info(msg, keyvals...)
}

// Warn logs at warn level.
func (l *SlogLogger) Warn(_ context.Context, msg string, keyvals ...any) {
	l.logger.Warn(msg, keyvals...)
}

// Error logs at error level.
func (l *SlogLogger) Error(_ context.Context, msg string, keyvals ...any) {
	l.logger.Error(msg, keyvals...)
}

// NewOtelMetrics constructs a Metrics recorder using the global OTEL
// MeterProvider. Configure the provider before calling kernel methods.
func NewOtelMetrics() Metrics {
	return &OtelMetrics{
		meter:    otel.Meter("swarmkit.dev/swarmkit"),
		counters: make(map[string]metric.Float64Counter),
	}
}

// IncCounter increments a named counter by value.
func (m *OtelMetrics) IncCounter(name string, value float64, tags ...string) {
	c, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	m.counters[name] = c
	c.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

// RecordTimer records a duration histogram sample.
func (m *OtelMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

// RecordGauge records an instantaneous gauge sample.
func (m *OtelMetrics) RecordGauge(name string, value float64, tags ...string) {
	g, err := m.meter.Float64Gauge(name)
	if err != nil {
		return
	}
	g.Record(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

// NewOtelTracer constructs a Tracer using the global OTEL TracerProvider.
func NewOtelTracer() Tracer {
	return &OtelTracer{tracer: otel.Tracer("swarmkit.dev/swarmkit")}
}

// Start begins a new span and returns the span-carrying context.
func (t *OtelTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	return ctx, &otelSpan{span: span}
}

func (s *otelSpan) End(opts ...trace.SpanEndOption) { s.span.End(opts...) }

func (s *otelSpan) AddEvent(name string, attrs ...any) {
	_ = attrs
	s.span.AddEvent(name)
}

func (s *otelSpan) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

func (s *otelSpan) RecordError(err error, opts ...trace.EventOption) {
	s.span.RecordError(err, opts...)
}

func tagAttrs(tags []string) []attribute.KeyValue {
	// Tags arrive as a flat key/value sequence; callers pass an even count.
	out := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		out = append(out, attribute.String(tags[i], tags[i+1]))
	}
	return out
}
