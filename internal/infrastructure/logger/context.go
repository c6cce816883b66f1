package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
	tenantIDKey  contextKey = "tenant_id"
	userIDKey    contextKey = "user_id"
)

// WithContext attaches a logger to ctx
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the attached logger or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithRequestID records the request ID for log correlation
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithTenantID records the tenant the request acts for
func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tenantIDKey, id)
}

// WithUserID records the authenticated user
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// RequestID returns the request ID stored in ctx
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}

// TenantID returns the tenant ID stored in ctx
func TenantID(ctx context.Context) string {
	s, _ := ctx.Value(tenantIDKey).(string)
	return s
}

// UserID returns the user ID stored in ctx
func UserID(ctx context.Context) string {
	s, _ := ctx.Value(userIDKey).(string)
	return s
}

// Fields returns the correlation fields present in ctx: trace and span IDs,
// request ID, tenant and user
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()))
	}
	if v := RequestID(ctx); v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	if v := TenantID(ctx); v != "" {
		fields = append(fields, zap.String("tenant_id", v))
	}
	if v := UserID(ctx); v != "" {
		fields = append(fields, zap.String("user_id", v))
	}
	return fields
}

// L returns the context's logger enriched with its correlation fields.
// Usage: logger.L(ctx).Info("quota reset", zap.String("metric_type", m))
func L(ctx context.Context) *zap.Logger {
	return With(ctx, FromContext(ctx))
}

// With enriches base with the correlation fields of ctx
func With(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	if f := Fields(ctx); len(f) > 0 {
		return base.With(f...)
	}
	return base
}
