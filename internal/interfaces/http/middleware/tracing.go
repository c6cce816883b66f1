package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/subgov/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request through otelgin. The span name is
// the matched route pattern.
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// SpanEnricher tags the request span with the request ID and the caller, and
// marks it failed on 5xx. Place it after Authenticate.
func SpanEnricher() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if id := GetRequestID(c); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		if p := GetPrincipal(c); p != nil {
			span.SetAttributes(attribute.String("user.role", string(p.Role)))
			if p.TenantID != uuid.Nil {
				span.SetAttributes(telemetry.AttrTenantID.String(p.TenantID.String()))
			}
		}

		c.Next()

		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		if len(c.Errors) > 0 {
			span.SetAttributes(attribute.String("error.message", c.Errors.Last().Error()))
		}
	}
}
