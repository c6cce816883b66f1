package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/subgov/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// httpDurationBuckets are the latency histogram bounds in seconds
var httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// HTTPMetrics records request count, latency and in-flight requests per route.
// Unmatched routes are grouped under "unmatched" to keep cardinality bounded.
func HTTPMetrics(meter metric.Meter) (gin.HandlerFunc, error) {
	total, err := meter.Int64Counter("http_server_request_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("http_server_request_duration_seconds",
		metric.WithDescription("HTTP request latency distribution in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(httpDurationBuckets...))
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		base := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(c.Request.Method),
			telemetry.AttrHTTPRoute.String(route),
		}
		active.Add(ctx, 1, metric.WithAttributes(base...))
		start := time.Now()

		c.Next()

		active.Add(ctx, -1, metric.WithAttributes(base...))
		attrs := metric.WithAttributes(append(base,
			telemetry.AttrHTTPStatusCode.String(strconv.Itoa(c.Writer.Status())))...)
		total.Add(ctx, 1, attrs)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}, nil
}
