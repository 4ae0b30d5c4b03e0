package core

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelTracer adapts an OpenTelemetry tracer to the engine Tracer interface.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer builds an adapter from provider. A nil provider uses the
// globally registered one.
func NewOTelTracer(provider trace.TracerProvider) *OTelTracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &OTelTracer{tracer: provider.Tracer("labbench/internal/core")}
}

// Start implements Tracer.
func (t *OTelTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	ctx, span := t.tracer.Start(ctx, "engine."+operation, trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(o Outcome) {
	s.span.SetAttributes(
		attribute.String("labbench.experiment", o.Experiment),
		attribute.String("labbench.session", o.Session),
		attribute.Int("labbench.step", o.Step),
		attribute.Bool("labbench.complete", o.Complete),
	)
	if o.Err != nil {
		s.span.RecordError(o.Err)
		s.span.SetStatus(codes.Error, o.Err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
