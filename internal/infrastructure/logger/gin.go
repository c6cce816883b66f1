package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestIDHeader is echoed on every response
const RequestIDHeader = "X-Request-ID"

// GinMiddleware logs one line per request at a level chosen by status code and
// exposes a request-scoped logger to handlers. It expects the request ID
// middleware to run first.
func GinMiddleware(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		reqLogger := base.With(
			zap.String("request_id", c.Writer.Header().Get(RequestIDHeader)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
		)
		c.Request = c.Request.WithContext(WithContext(c.Request.Context(), reqLogger))

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if tenant := TenantID(c.Request.Context()); tenant != "" {
			fields = append(fields, zap.String("tenant_id", tenant))
		}
		if query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			reqLogger.Error("HTTP Request", fields...)
		case status >= http.StatusBadRequest:
			reqLogger.Warn("HTTP Request", fields...)
		default:
			reqLogger.Info("HTTP Request", fields...)
		}
	}
}

// Recovery turns a handler panic into a 500 response with the standard error
// envelope and logs the stack
func Recovery(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				With(c.Request.Context(), base).Error("Panic recovered",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", r),
					zap.Stack("stacktrace"),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "INTERNAL_ERROR",
						"message": "An unexpected error occurred",
					},
				})
			}
		}()
		c.Next()
	}
}

// FromGin returns the request-scoped logger with tenant and user fields
func FromGin(c *gin.Context) *zap.Logger {
	return L(c.Request.Context())
}
