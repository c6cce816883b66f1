package telemetry

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// Profiling label keys
const (
	ProfilingLabelRoute    = "route"
	ProfilingLabelMethod   = "method"
	ProfilingLabelTenantID = "tenant_id"
	ProfilingLabelJob      = "job"
)

func startProfiler(cfg Config, logger *zap.Logger) (*pyroscope.Profiler, error) {
	if cfg.PyroscopeEndpoint == "" {
		return nil, fmt.Errorf("telemetry.pyroscope_endpoint is required when profiling is enabled")
	}
	runtime.SetMutexProfileFraction(5)
	runtime.SetBlockProfileRate(5)

	tags := map[string]string{}
	if host, err := os.Hostname(); err == nil {
		tags["hostname"] = host
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.PyroscopeEndpoint,
		Logger:          pyroscopeLogger{logger.Named("pyroscope").Sugar()},
		Tags:            tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockDuration,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	logger.Info("Pyroscope profiler started", zap.String("server_address", cfg.PyroscopeEndpoint))
	return profiler, nil
}

// WithProfilingLabels runs fn with pprof labels attached so profiles can be
// filtered by route or tenant. Empty values are dropped.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := make([]string, 0, len(labels)*2)
	for k, v := range labels {
		if v != "" {
			pairs = append(pairs, k, v)
		}
	}
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

type pyroscopeLogger struct {
	*zap.SugaredLogger
}

func (l pyroscopeLogger) Infof(format string, args ...any)  { l.SugaredLogger.Debugf(format, args...) }
func (l pyroscopeLogger) Debugf(format string, args ...any) { l.SugaredLogger.Debugf(format, args...) }
func (l pyroscopeLogger) Errorf(format string, args ...any) { l.SugaredLogger.Errorf(format, args...) }
