package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/stepchain/step"
)

// tracerName is the instrumentation scope name for stepchain tracing.
const tracerName = "github.com/xraph/stepchain"

// SpanName is the name of the span wrapping each handler call.
const SpanName = "stepchain.step.execute"

// Tracing returns middleware that wraps the handler call in an OpenTelemetry
// span using the global TracerProvider. Without one configured the span is a
// noop.
//
// Span attributes: stepchain.step.name, stepchain.invocation.id,
// stepchain.iteration_count, and on success stepchain.step.action.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, inv *step.Invocation, next Handler) (step.Result, error) {
		ctx, span := tracer.Start(ctx, SpanName,
			trace.WithAttributes(
				attribute.String("stepchain.step.name", inv.Step),
				attribute.String("stepchain.invocation.id", inv.ID.String()),
				attribute.Int("stepchain.iteration_count", inv.Iteration),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		res, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("stepchain.step.action", res.Action.String()))
			span.SetStatus(codes.Ok, "")
		}

		return res, err
	}
}
