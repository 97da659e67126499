package middleware

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for enrich tracing.
const tracerName = "github.com/xraph/enrich"

// Tracing returns middleware that wraps each attempt in an OpenTelemetry
// span using the global TracerProvider. Without a configured provider the
// noop tracer is used.
//
// Span attributes: enrich.ticket.id, enrich.entity.id, enrich.attempt,
// enrich.retry_count, enrich.worker.id, and enrich.trace_id when the ticket
// carries a correlation token.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, a *Attempt, next Handler) (json.RawMessage, error) {
		attrs := []attribute.KeyValue{
			attribute.String("enrich.ticket.id", a.Ticket.ID.String()),
			attribute.String("enrich.entity.id", a.Ticket.EntityID.String()),
			attribute.Int("enrich.attempt", a.Number),
			attribute.Int("enrich.retry_count", a.Ticket.RetryCount),
			attribute.String("enrich.worker.id", a.WorkerID),
		}
		if a.Ticket.TraceID != "" {
			attrs = append(attrs, attribute.String("enrich.trace_id", a.Ticket.TraceID))
		}

		ctx, span := tracer.Start(ctx, "enrich.ticket.attempt",
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		result, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return result, err
	}
}
