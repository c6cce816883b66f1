// Package telemetry wires OpenTelemetry traces, metrics and logs, plus
// Pyroscope continuous profiling, behind a single Setup call.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/grafana/pyroscope-go"
	"github.com/subgov/backend/internal/infrastructure/config"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds telemetry configuration
type Config struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	ServiceVersion    string
	Insecure          bool
	ExportInterval    time.Duration
	ProfilingEnabled  bool
	PyroscopeEndpoint string
}

// ConfigFrom maps the application config section
func ConfigFrom(cfg config.TelemetryConfig, version string) Config {
	return Config{
		Enabled:           cfg.Enabled,
		CollectorEndpoint: cfg.CollectorEndpoint,
		SamplingRatio:     cfg.SamplingRatio,
		ServiceName:       cfg.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Insecure,
		ExportInterval:    60 * time.Second,
		ProfilingEnabled:  cfg.ProfilingEnabled,
		PyroscopeEndpoint: cfg.PyroscopeEndpoint,
	}
}

// Providers owns the SDK providers created by Setup. When telemetry is
// disabled every field is nil and the accessors return no-op implementations.
type Providers struct {
	tracer   *sdktrace.TracerProvider
	meter    *sdkmetric.MeterProvider
	logs     *sdklog.LoggerProvider
	profiler *pyroscope.Profiler
	config   Config
	logger   *zap.Logger
}

// Setup creates the OTLP exporters and installs the global tracer and meter
// providers and the text map propagator
func Setup(ctx context.Context, cfg Config, logger *zap.Logger) (*Providers, error) {
	p := &Providers{config: cfg, logger: logger}
	if !cfg.Enabled {
		logger.Info("Telemetry disabled, using no-op providers")
		return p, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint)}
	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}

	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	p.tracer = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SamplingRatio)),
	)

	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create OTLP metrics exporter: %w", err), p.Shutdown(ctx))
	}
	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	p.meter = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(interval))),
	)

	logExp, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create OTLP logs exporter: %w", err), p.Shutdown(ctx))
	}
	p.logs = sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetMeterProvider(p.meter)
	global.SetLoggerProvider(p.logs)

	if cfg.ProfilingEnabled {
		if p.profiler, err = startProfiler(cfg, logger); err != nil {
			return nil, errors.Join(err, p.Shutdown(ctx))
		}
		// span profiles tag CPU samples with the active span ID
		otel.SetTracerProvider(otelpyroscope.NewTracerProvider(p.tracer))
	} else {
		otel.SetTracerProvider(p.tracer)
	}

	logger.Info("OpenTelemetry initialized",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Float64("sampling_ratio", cfg.SamplingRatio),
		zap.String("service_name", cfg.ServiceName),
		zap.Bool("profiling", cfg.ProfilingEnabled))
	return p, nil
}

// Sampler maps a ratio onto a parent-based sampler
func Sampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case ratio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// Enabled reports whether exporters are running
func (p *Providers) Enabled() bool {
	return p.tracer != nil
}

// MeterProvider returns the SDK meter provider or a no-op one
func (p *Providers) MeterProvider() metric.MeterProvider {
	if p.meter == nil {
		return metricnoop.NewMeterProvider()
	}
	return p.meter
}

// Meter returns a named meter
func (p *Providers) Meter(name string) metric.Meter {
	return p.MeterProvider().Meter(name)
}

// ZapCore returns a core that forwards log entries at or above level to the
// OpenTelemetry log pipeline, or a no-op core when telemetry is disabled
func (p *Providers) ZapCore(level zapcore.Level) zapcore.Core {
	if p.logs == nil {
		return zapcore.NewNopCore()
	}
	return &levelCore{
		Core:  otelzap.NewCore(p.config.ServiceName, otelzap.WithLoggerProvider(p.logs)),
		level: level,
	}
}

// Shutdown flushes and stops every provider
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.profiler != nil {
		errs = append(errs, p.profiler.Stop())
		p.profiler = nil
	}
	if p.tracer != nil {
		errs = append(errs, p.tracer.Shutdown(ctx))
	}
	if p.meter != nil {
		errs = append(errs, p.meter.Shutdown(ctx))
	}
	if p.logs != nil {
		errs = append(errs, p.logs.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		p.logger.Error("Telemetry shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

// levelCore drops entries below level; the otelzap core enables every level
type levelCore struct {
	zapcore.Core
	level zapcore.Level
}

func (c *levelCore) Enabled(l zapcore.Level) bool {
	return l >= c.level && c.Core.Enabled(l)
}

func (c *levelCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelCore{Core: c.Core.With(fields), level: c.level}
}
