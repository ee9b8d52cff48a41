package telemetry

import "context"

// NoopLogger discards every log line. Used as the default when a component
// is constructed without an explicit Logger, so unset fields get a
// no-op implementation rather than a nil-pointer panic.
type NoopLogger struct{}

func (NoopLogger) Debug(context.Context, string, ...any) {}
func (NoopLogger) Info(context.Context, string, ...any)  {}
func (NoopLogger) Warn(context.Context, string, ...any)  {}
func (NoopLogger) Error(context.Context, string, ...any) {}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

func (NoopMetrics) IncrCounter(string, ...string)            {}
func (NoopMetrics) ObserveDuration(string, float64, ...string) {}
func (NoopMetrics) SetGauge(string, float64, ...string)      {}

// NoopSpan is a Span that does nothing.
type NoopSpan struct{}

func (NoopSpan) End()                      {}
func (NoopSpan) SetAttribute(string, any)  {}
func (NoopSpan) RecordError(error)         {}

// NoopTracer returns a NoopSpan for every Start call.
type NoopTracer struct{}

func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, NoopSpan{}
}

// Noop bundles the three Noop implementations for convenient defaulting.
var Noop = ToolTelemetry{Logger: NoopLogger{}, Metrics: NoopMetrics{}, Tracer: NoopTracer{}}
