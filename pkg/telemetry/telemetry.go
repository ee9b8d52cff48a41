// Package telemetry defines the Logger/Metrics/Tracer seam the runtime core
// depends on, with Noop implementations for tests and Clue/OTEL-backed
// implementations for production wiring.
package telemetry

import "context"

// Logger emits structured key-value log lines.
type Logger interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, kv ...any)
}

// Metrics records counters, gauges, and durations.
type Metrics interface {
	IncrCounter(name string, tags ...string)
	ObserveDuration(name string, seconds float64, tags ...string)
	SetGauge(name string, value float64, tags ...string)
}

// Span is a single unit of traced work.
type Span interface {
	End()
	SetAttribute(key string, value any)
	RecordError(err error)
}

// Tracer starts spans.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}

// ToolTelemetry groups the three signals a tool invocation reports,
// matching the granularity ToolRouter.callTool emits at.
type ToolTelemetry struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}
