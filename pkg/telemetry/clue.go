package telemetry

import (
	"context"

	"goa.design/clue/log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ClueLogger adapts goa.design/clue's structured logger to the Logger seam.
type ClueLogger struct{}

// NewClueLogger returns a Logger backed by clue's context logger. Callers
// are expected to have called log.Context on the base context already.
func NewClueLogger() Logger { return ClueLogger{} }

func kvToFields(kv []any) []log.Fielder {
	fields := make([]log.Fielder, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, log.KV{K: key, V: kv[i+1]})
	}
	return fields
}

func (ClueLogger) Debug(ctx context.Context, msg string, kv ...any) {
	log.Debug(ctx, msg, kvToFields(kv)...)
}

func (ClueLogger) Info(ctx context.Context, msg string, kv ...any) {
	log.Info(ctx, msg, kvToFields(kv)...)
}

func (ClueLogger) Warn(ctx context.Context, msg string, kv ...any) {
	log.Error(ctx, nil, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFields(kv)...)...)
}

func (ClueLogger) Error(ctx context.Context, msg string, kv ...any) {
	log.Error(ctx, nil, append([]log.Fielder{log.KV{K: "msg", V: msg}}, kvToFields(kv)...)...)
}

// ClueMetrics adapts an OTEL meter to the Metrics seam.
type ClueMetrics struct {
	meter metric.Meter
}

// NewClueMetrics constructs a ClueMetrics from an OTEL Meter, as wired by
// goa.design/clue/clue.NewMeter in process bootstrap.
func NewClueMetrics(meter metric.Meter) Metrics { return ClueMetrics{meter: meter} }

func (m ClueMetrics) IncrCounter(name string, tags ...string) {
	c, err := m.meter.Int64Counter(name)
	if err != nil {
		return
	}
	c.Add(context.Background(), 1, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m ClueMetrics) ObserveDuration(name string, seconds float64, tags ...string) {
	h, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), seconds, metric.WithAttributes(tagsToAttrs(tags)...))
}

func (m ClueMetrics) SetGauge(name string, value float64, tags ...string) {
	g, err := m.meter.Float64Gauge(name)
	if err != nil {
		return
	}
	g.Record(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

func tagsToAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		attrs = append(attrs, attribute.String(tags[i], tags[i+1]))
	}
	return attrs
}

// ClueTracer adapts an OTEL Tracer to the Tracer seam.
type ClueTracer struct {
	tracer trace.Tracer
}

// NewClueTracer constructs a ClueTracer from an OTEL Tracer, as wired by
// goa.design/clue/clue.NewTracer in process bootstrap.
func NewClueTracer(tracer trace.Tracer) Tracer { return ClueTracer{tracer: tracer} }

func (t ClueTracer) Start(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End() { s.span.End() }

func (s otelSpan) SetAttribute(key string, value any) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, toString(v)))
	}
}

func (s otelSpan) RecordError(err error) { s.span.RecordError(err) }

func toString(v any) string {
	if v == nil {
		return ""
	}
	if st, ok := v.(interface{ String() string }); ok {
		return st.String()
	}
	return ""
}
