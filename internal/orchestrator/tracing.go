// Tracing instrumentation for the orchestrator.
package orchestrator

import (
	"context"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// startDispatchSpan starts a span covering one operator message.
func (o *Orchestrator) startDispatchSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "message.dispatch")
	span.SetAttributes(
		attribute.String("session.model", model),
	)
	return ctx, span
}

// endDispatchSpan ends the dispatch span with outcome info.
func endDispatchSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("dispatch.outcome", outcome))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// startToolSpan starts a span for one tool call from the primary session.
func startToolSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "tool."+tool)
	span.SetAttributes(
		attribute.String("tool.name", tool),
	)
	return ctx, span
}

// endToolSpan ends the tool span.
func endToolSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
