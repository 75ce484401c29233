package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Trace export is an external concern; this package only wires W3C
// context propagation so the worker's spans parent onto the caller's
// trace. The traceparent header itself travels verbatim inside outbox
// payloads.

func SetupPropagation() {
	otel.SetTextMapPropagator(propagation.TraceContext{})
}

func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// ContextFromTraceparent resolves a stored traceparent value back into a
// context suitable for span parenting. An empty value is a no-op.
func ContextFromTraceparent(ctx context.Context, traceparent string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": traceparent}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
