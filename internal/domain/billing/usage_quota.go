package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
)

// UnlimitedValue marks a limit with no ceiling
const UnlimitedValue int64 = -1

// Default alert thresholds, in percent of the limit
const (
	DefaultWarningPercent  = 80
	DefaultExceededPercent = 100
)

// ValidateLimit checks that limit is -1 or non-negative
func ValidateLimit(limit int64) error {
	if limit < UnlimitedValue {
		return shared.NewValidationError("INVALID_LIMIT", "Limit must be -1 (unlimited) or non-negative")
	}
	return nil
}

// UsageQuota is the counter for one tenant and one metric within the current
// metering period.
type UsageQuota struct {
	shared.TenantAggregateRoot
	MetricType   MetricType
	CurrentValue int64
	LimitValue   int64
	PeriodStart  time.Time
	PeriodEnd    time.Time
	LastResetAt  *time.Time
}

// NewUsageQuota creates a quota whose period is the calendar month containing now
func NewUsageQuota(tenantID uuid.UUID, metric MetricType, limit int64, now time.Time) (*UsageQuota, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if !metric.IsValid() {
		return nil, shared.NewValidationError("INVALID_METRIC_TYPE", "Unknown metric type: "+string(metric))
	}
	if err := ValidateLimit(limit); err != nil {
		return nil, err
	}
	start := MeteringPeriodStart(now)
	return &UsageQuota{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID, now),
		MetricType:          metric,
		LimitValue:          limit,
		PeriodStart:         start,
		PeriodEnd:           start.AddDate(0, 1, 0),
	}, nil
}

// IsUnlimited returns true if the quota has no limit
func (q *UsageQuota) IsUnlimited() bool {
	return q.LimitValue == UnlimitedValue
}

// Increment adds delta to the counter and returns the previous value.
// Callers must hold the row lock.
func (q *UsageQuota) Increment(delta int64, now time.Time) (int64, error) {
	if delta <= 0 {
		return q.CurrentValue, shared.NewValidationError("INVALID_DELTA", "Usage delta must be positive")
	}
	prev := q.CurrentValue
	q.CurrentValue += delta
	q.UpdatedAt = now
	q.IncrementVersion()
	return prev, nil
}

// WouldExceed reports whether adding delta would take the counter past the limit
func (q *UsageQuota) WouldExceed(delta int64) bool {
	return !q.IsUnlimited() && q.CurrentValue+delta > q.LimitValue
}

// Reset zeroes the counter without touching the limit or period
func (q *UsageQuota) Reset(now time.Time) {
	q.CurrentValue = 0
	q.LastResetAt = &now
	q.UpdatedAt = now
	q.IncrementVersion()
}

// SetLimit replaces the limit and returns the previous one
func (q *UsageQuota) SetLimit(limit int64, now time.Time) (int64, error) {
	if err := ValidateLimit(limit); err != nil {
		return q.LimitValue, err
	}
	prev := q.LimitValue
	if prev == limit {
		return prev, nil
	}
	q.LimitValue = limit
	q.UpdatedAt = now
	q.IncrementVersion()
	return prev, nil
}

// IsDue reports whether the current period has elapsed
func (q *UsageQuota) IsDue(now time.Time) bool {
	return !q.PeriodEnd.After(now)
}

// Rollover advances the period until it contains now. When resetValue is set
// the counter is zeroed; gauges may keep their value. Returns false if the
// period had not elapsed, which makes repeated calls within a period no-ops.
func (q *UsageQuota) Rollover(now time.Time, resetValue bool) bool {
	if !q.IsDue(now) {
		return false
	}
	for !q.PeriodEnd.After(now) {
		q.PeriodStart = q.PeriodEnd
		q.PeriodEnd = q.PeriodStart.AddDate(0, 1, 0)
	}
	if resetValue {
		q.CurrentValue = 0
		q.LastResetAt = &now
	}
	q.UpdatedAt = now
	q.IncrementVersion()
	return true
}

// Check evaluates the quota without changing it
func (q *UsageQuota) Check() QuotaCheck {
	c := QuotaCheck{
		MetricType: q.MetricType,
		Current:    q.CurrentValue,
		Limit:      q.LimitValue,
		Unlimited:  q.IsUnlimited(),
	}
	if c.Unlimited {
		c.CanAdd = true
		c.Available = UnlimitedValue
		return c
	}
	c.CanAdd = q.CurrentValue < q.LimitValue
	c.Available = max(q.LimitValue-q.CurrentValue, 0)
	pct := UsagePercent(q.CurrentValue, q.LimitValue)
	c.Percentage = &pct
	return c
}

// QuotaCheck is the advisory answer to "may this tenant add one more?"
type QuotaCheck struct {
	MetricType MetricType
	CanAdd     bool
	Current    int64
	Limit      int64
	Available  int64
	// Percentage is nil when the quota is unlimited
	Percentage *float64
	Unlimited  bool
}

// PercentageLabel renders the percentage for humans
func (c QuotaCheck) PercentageLabel() string {
	if c.Percentage == nil {
		return "unlimited"
	}
	return fmt.Sprintf("%.1f%%", *c.Percentage)
}

// UsagePercent returns current/limit*100. A zero limit reports 100 as soon as
// anything is used and 0 otherwise; callers handle unlimited separately.
func UsagePercent(current, limit int64) float64 {
	if limit <= 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return float64(current) / float64(limit) * 100
}
