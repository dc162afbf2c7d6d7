package registry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelTracer adapts an OpenTelemetry tracer to the Tracer interface so
// registry spans join a wider trace.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer wraps the given OpenTelemetry tracer.
func NewOTelTracer(tracer trace.Tracer) *OTelTracer {
	return &OTelTracer{tracer: tracer}
}

// Start opens an OpenTelemetry span for the operation.
func (t *OTelTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	if t.tracer == nil {
		return ctx, noopSpan{}
	}
	ctx, span := t.tracer.Start(ctx, operation)
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
