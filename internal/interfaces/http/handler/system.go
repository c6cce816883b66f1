package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/subgov/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// DependencyCheck probes one backing service for the readiness endpoint
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// SystemHandler serves liveness, readiness and build information
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	checks    []DependencyCheck
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name, version string, log *zap.Logger, checks ...DependencyCheck) *SystemHandler {
	return &SystemHandler{
		BaseHandler: BaseHandler{log: log},
		name:        name,
		version:     version,
		checks:      checks,
		startTime:   time.Now(),
	}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name" example:"subgov"`
	Version   string `json:"version" example:"1.0.0"`
	GoVersion string `json:"go_version" example:"go1.25.5"`
	Uptime    string `json:"uptime" example:"1h30m45s"`
}

// HealthResponse is the body of /health and /ready
type HealthResponse struct {
	Status       string            `json:"status" example:"healthy"`
	Time         string            `json:"time" example:"2026-03-15T12:00:00Z"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Health godoc
//
//	@ID				health
//	@Summary		Liveness probe
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Time: time.Now().UTC().Format(time.RFC3339)})
}

// Ready godoc
//
//	@ID				ready
//	@Summary		Readiness probe
//	@Description	Pings every backing service. Any failure answers 503.
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/ready [get]
func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:       "healthy",
		Time:         time.Now().UTC().Format(time.RFC3339),
		Dependencies: make(map[string]string, len(h.checks)),
	}
	status := http.StatusOK
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			h.logger(c).Warn("Readiness check failed", zap.String("dependency", check.Name), zap.Error(err))
			resp.Dependencies[check.Name] = "error"
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Dependencies[check.Name] = "ok"
	}
	c.JSON(status, resp)
}

// GetSystemInfo godoc
//
//	@ID				getSystemInfo
//	@Summary		Get system information
//	@Description	Returns the build version and uptime
//	@Tags			system
//	@Produce		json
//	@Success		200	{object}	APIResponse[SystemInfoResponse]
//	@Router			/system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(info))
}
