package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer and meter name used by the service
const InstrumentationName = "github.com/subgov/backend"

// Common attribute keys
var (
	AttrTenantID   = attribute.Key("tenant_id")
	AttrMetricType = attribute.Key("metric_type")
	AttrAlertLevel = attribute.Key("alert_level")
	AttrStatus     = attribute.Key("status")
	AttrReason     = attribute.Key("reason")
	AttrTierCode   = attribute.Key("tier_code")
	AttrJob        = attribute.Key("job")

	AttrHTTPMethod     = attribute.Key("http.method")
	AttrHTTPRoute      = attribute.Key("http.route")
	AttrHTTPStatusCode = attribute.Key("http.status_code")
)

// StartSpan starts an internal span on the global tracer provider
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(InstrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err, if any, and ends the span
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TraceID returns the active trace ID, or "" outside a sampled span
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
