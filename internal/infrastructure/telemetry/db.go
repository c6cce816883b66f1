package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig controls database instrumentation
type DBConfig struct {
	TraceEnabled    bool
	LogFullSQL      bool
	SlowQueryThresh time.Duration
	DBSystem        string
}

type dbStartKey struct{}

// InstrumentDB registers otelgorm tracing, a slow-query span annotation and
// connection pool gauges on db
func InstrumentDB(db *gorm.DB, cfg DBConfig, meter metric.Meter, logger *zap.Logger) error {
	if cfg.TraceEnabled {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
		if !cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
		if err := registerSlowQuery(db, cfg.SlowQueryThresh); err != nil {
			return err
		}
	}
	if err := registerPoolGauges(db, meter); err != nil {
		return err
	}
	logger.Info("Database instrumentation enabled",
		zap.Bool("tracing", cfg.TraceEnabled),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh))
	return nil
}

func registerSlowQuery(db *gorm.DB, thresh time.Duration) error {
	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, dbStartKey{}, time.Now())
		}
	}
	after := func(tx *gorm.DB) {
		ctx := tx.Statement.Context
		if ctx == nil {
			return
		}
		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return
		}
		if tx.Statement.Table != "" {
			span.SetAttributes(attribute.String("db.sql.table", tx.Statement.Table))
		}
		start, ok := ctx.Value(dbStartKey{}).(time.Time)
		if !ok || thresh <= 0 {
			return
		}
		if elapsed := time.Since(start); elapsed > thresh {
			span.SetAttributes(attribute.Bool("db.slow_query", true))
			span.AddEvent("slow_query", trace.WithAttributes(
				attribute.Int64("duration_ms", elapsed.Milliseconds()),
				attribute.Int64("threshold_ms", thresh.Milliseconds())))
		}
	}

	// the annotation must run before otelgorm ends the span
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("subgov:start_create", before),
		cb.Query().Before("gorm:query").Register("subgov:start_query", before),
		cb.Update().Before("gorm:update").Register("subgov:start_update", before),
		cb.Delete().Before("gorm:delete").Register("subgov:start_delete", before),
		cb.Raw().Before("gorm:raw").Register("subgov:start_raw", before),
		cb.Create().After("gorm:create").Before("otel:after:create").Register("subgov:slow_create", after),
		cb.Query().After("gorm:query").Before("otel:after:query").Register("subgov:slow_query", after),
		cb.Update().After("gorm:update").Before("otel:after:update").Register("subgov:slow_update", after),
		cb.Delete().After("gorm:delete").Before("otel:after:delete").Register("subgov:slow_delete", after),
		cb.Raw().After("gorm:raw").Before("otel:after:raw").Register("subgov:slow_raw", after),
	)
}

func registerPoolGauges(db *gorm.DB, meter metric.Meter) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	conns, err := meter.Int64ObservableGauge("db.pool.connections",
		metric.WithDescription("Database connections by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	waits, err := meter.Int64ObservableCounter("db.pool.wait_count",
		metric.WithDescription("Total connections waited for"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := sqlDB.Stats()
		o.ObserveInt64(conns, int64(s.InUse), metric.WithAttributes(attribute.String("state", "in_use")))
		o.ObserveInt64(conns, int64(s.Idle), metric.WithAttributes(attribute.String("state", "idle")))
		o.ObserveInt64(conns, int64(s.MaxOpenConnections), metric.WithAttributes(attribute.String("state", "max")))
		o.ObserveInt64(waits, s.WaitCount)
		return nil
	}, conns, waits)
	return err
}
