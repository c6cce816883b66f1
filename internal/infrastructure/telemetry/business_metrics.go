package telemetry

import (
	"context"
	"errors"

	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/upgrade"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// BusinessMetrics counts metering, coupon and upgrade review outcomes. It is
// handed to the application services as their metrics sink.
type BusinessMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	usageRecorded   metric.Int64Counter
	usageAmount     metric.Int64Counter
	alertsRaised    metric.Int64Counter
	quotaResets     metric.Int64Counter
	couponsRedeemed metric.Int64Counter
	couponDiscount  metric.Int64Counter
	couponsRejected metric.Int64Counter
	requestsClosed  metric.Int64Counter
}

// CountSource reports a labelled population, e.g. tenants per tier
type CountSource func(ctx context.Context) (map[string]int64, error)

// NewBusinessMetrics creates the counters on meter
func NewBusinessMetrics(meter metric.Meter, logger *zap.Logger) (*BusinessMetrics, error) {
	m := &BusinessMetrics{meter: meter, logger: logger}
	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	m.usageRecorded = counter("subgov.usage.recorded", "Usage record operations")
	m.usageAmount = counter("subgov.usage.amount", "Sum of recorded usage deltas")
	m.alertsRaised = counter("subgov.usage.alerts", "Usage alerts raised")
	m.quotaResets = counter("subgov.usage.resets", "Quota counter resets")
	m.couponsRedeemed = counter("subgov.coupon.redemptions", "Coupons redeemed")
	m.couponDiscount = counter("subgov.coupon.discount", "Discount granted through coupons, in minor units")
	m.couponsRejected = counter("subgov.coupon.rejections", "Coupon applications rejected")
	m.requestsClosed = counter("subgov.upgrade.closed", "Upgrade requests reaching a terminal status")

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// UsageRecorded counts a metering call and its delta
func (m *BusinessMetrics) UsageRecorded(ctx context.Context, metricType billing.MetricType, delta int64, overLimit bool) {
	attrs := metric.WithAttributes(AttrMetricType.String(string(metricType)), attribute.Bool("over_limit", overLimit))
	m.usageRecorded.Add(ctx, 1, attrs)
	if delta > 0 {
		m.usageAmount.Add(ctx, delta, metric.WithAttributes(AttrMetricType.String(string(metricType))))
	}
}

// AlertRaised counts a new usage alert
func (m *BusinessMetrics) AlertRaised(ctx context.Context, metricType billing.MetricType, level billing.AlertLevel) {
	m.alertsRaised.Add(ctx, 1, metric.WithAttributes(
		AttrMetricType.String(string(metricType)),
		AttrAlertLevel.String(string(level))))
}

// QuotaReset counts a counter reset, by cause
func (m *BusinessMetrics) QuotaReset(ctx context.Context, metricType billing.MetricType, reason string) {
	m.quotaResets.Add(ctx, 1, metric.WithAttributes(
		AttrMetricType.String(string(metricType)),
		AttrReason.String(reason)))
}

// CouponRedeemed counts a redemption and its discount
func (m *BusinessMetrics) CouponRedeemed(ctx context.Context, code string, discount int64) {
	attrs := metric.WithAttributes(attribute.String("coupon_code", code))
	m.couponsRedeemed.Add(ctx, 1, attrs)
	if discount > 0 {
		m.couponDiscount.Add(ctx, discount, attrs)
	}
}

// CouponRejected counts a rejected coupon by reason code
func (m *BusinessMetrics) CouponRejected(ctx context.Context, reason string) {
	m.couponsRejected.Add(ctx, 1, metric.WithAttributes(AttrReason.String(reason)))
}

// RequestClosed counts an upgrade request by terminal status
func (m *BusinessMetrics) RequestClosed(ctx context.Context, status upgrade.RequestStatus) {
	m.requestsClosed.Add(ctx, 1, metric.WithAttributes(AttrStatus.String(string(status))))
}

// ObserveCounts publishes source as a gauge, one series per key under attr.
// Collection failures are logged and leave the gauge unreported for that cycle.
func (m *BusinessMetrics) ObserveCounts(name, description string, attr attribute.Key, source CountSource) error {
	gauge, err := m.meter.Int64ObservableGauge(name, metric.WithDescription(description))
	if err != nil {
		return err
	}
	_, err = m.meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		counts, err := source(ctx)
		if err != nil {
			m.logger.Warn("Failed to collect gauge", zap.String("metric", name), zap.Error(err))
			return nil
		}
		for k, v := range counts {
			o.ObserveInt64(gauge, v, metric.WithAttributes(attr.String(k)))
		}
		return nil
	}, gauge)
	return err
}
