package middleware

import (
	"context"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/subgov/backend/internal/infrastructure/telemetry"
)

// ProfilingConfig holds configuration for the profiling middleware
type ProfilingConfig struct {
	Enabled          bool
	SkipPaths        []string
	SkipPathPrefixes []string
}

// DefaultProfilingConfig skips health probes and the docs
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled:          true,
		SkipPaths:        []string{"/health", "/ready"},
		SkipPathPrefixes: []string{"/swagger"},
	}
}

// Profiling attaches pyroscope labels (method, route pattern, tenant) to the
// request so CPU profiles can be sliced per endpoint. Place it after
// Authenticate to get the tenant label.
func Profiling(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if slices.Contains(cfg.SkipPaths, path) || slices.ContainsFunc(cfg.SkipPathPrefixes, func(p string) bool {
			return strings.HasPrefix(path, p)
		}) {
			c.Next()
			return
		}

		telemetry.WithProfilingLabels(c.Request.Context(), profilingLabels(c), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func profilingLabels(c *gin.Context) map[string]string {
	labels := map[string]string{telemetry.ProfilingLabelMethod: c.Request.Method}
	if route := c.FullPath(); route != "" {
		labels[telemetry.ProfilingLabelRoute] = route
	}
	if p := GetPrincipal(c); p != nil && p.TenantID != uuid.Nil {
		labels[telemetry.ProfilingLabelTenantID] = p.TenantID.String()
	}
	return labels
}
