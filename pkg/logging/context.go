package logging

import (
	"context"
)

const (
	TraceIDKey       = "trace_id"
	RequestIDKey     = "request_id"
	CorrelationIDKey = "correlation_id"
	ServiceNameKey   = "service_name"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithCorrelationID tags the context with the correlation token of the job
// being processed, so every log line of one send/receive cycle can be joined.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(ServiceNameKey).(string); ok {
		return serviceName
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, TraceIDKey, traceID)
	}

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, RequestIDKey, requestID)
	}

	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		fields = append(fields, CorrelationIDKey, correlationID)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, ServiceNameKey, serviceName)
	}

	return fields
}
