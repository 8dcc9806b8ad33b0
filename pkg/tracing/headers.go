package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// InjectHeaders writes the trace context of ctx into headers, allocating the
// map when needed. Transports copy these into their native header fields.
func InjectHeaders(ctx context.Context, headers map[string]string) map[string]string {
	if headers == nil {
		headers = make(map[string]string)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
	return headers
}

func ExtractHeaders(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}

// StartSpanFromHeaders starts a span that continues the trace carried by a
// received message.
func StartSpanFromHeaders(ctx context.Context, operationName string, headers map[string]string) (context.Context, trace.Span) {
	ctx = ExtractHeaders(ctx, headers)
	return GetTracer("linkrelay-broker").Start(ctx, operationName)
}
