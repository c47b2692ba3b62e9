// Package observability provides tracing for csvscan. Spans are created on
// the global OpenTelemetry provider, which is a no-op until Initialize
// installs an exporter.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/rizalgowandy/duckdb"

// Span wraps a trace span and records its duration on End.
type Span struct {
	span       trace.Span
	name       string
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan starts a span named operationName.
func NewSpan(ctx context.Context, operationName string) (context.Context, *Span) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, operationName)

	return ctx, &Span{
		span:      span,
		name:      operationName,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute to the span (batched until End)
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Finish sets the span status from err and ends it.
func (s *Span) Finish(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.End()
}

// End ends the span and records its duration
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}

	if h, err := stageDuration(); err == nil {
		h.Record(context.Background(), time.Since(s.startTime).Seconds(),
			metric.WithAttributes(attribute.String("operation", s.name)))
	}

	s.span.End()
}

func stageDuration() (metric.Float64Histogram, error) {
	return otel.Meter(instrumentationName).Float64Histogram("csvscan.stage.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of traced csvscan stages"))
}

// Trace runs fn inside a span and records its outcome.
func Trace(ctx context.Context, operationName string, fn func(ctx context.Context, span *Span) error) error {
	ctx, span := NewSpan(ctx, operationName)
	err := fn(ctx, span)
	span.Finish(err)
	return err
}
