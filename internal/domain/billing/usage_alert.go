package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
)

// AlertLevel is the threshold a quota crossed
type AlertLevel string

const (
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelExceeded AlertLevel = "exceeded"
)

// IsValid returns true for known levels
func (l AlertLevel) IsValid() bool {
	return l == AlertLevelWarning || l == AlertLevelExceeded
}

// Thresholds holds the alert trigger points in percent of the limit
type Thresholds struct {
	WarningPercent  int64
	ExceededPercent int64
}

// DefaultThresholds returns 80% / 100%
func DefaultThresholds() Thresholds {
	return Thresholds{WarningPercent: DefaultWarningPercent, ExceededPercent: DefaultExceededPercent}
}

func (t Thresholds) reached(value, limit int64, level AlertLevel) bool {
	if limit == UnlimitedValue {
		return false
	}
	pct := t.WarningPercent
	if level == AlertLevelExceeded {
		pct = t.ExceededPercent
	}
	if limit == 0 {
		return value > 0
	}
	return value*100 >= limit*pct
}

// Crossed returns the highest level reached by (newValue, newLimit) that was not
// reached by (prevValue, prevLimit). Crossing both levels at once yields only
// the exceeded level.
func (t Thresholds) Crossed(prevValue, prevLimit, newValue, newLimit int64) (AlertLevel, bool) {
	for _, level := range []AlertLevel{AlertLevelExceeded, AlertLevelWarning} {
		if t.reached(newValue, newLimit, level) && !t.reached(prevValue, prevLimit, level) {
			return level, true
		}
	}
	return "", false
}

// UsageAlert records a threshold crossing. At most one unacknowledged alert
// exists per tenant, metric and level.
type UsageAlert struct {
	shared.TenantAggregateRoot
	MetricType     MetricType
	Level          AlertLevel
	CurrentValue   int64
	LimitValue     int64
	Percentage     float64
	Acknowledged   bool
	AcknowledgedAt *time.Time
	AcknowledgedBy *uuid.UUID
}

// NewUsageAlert builds an alert for quota at level
func NewUsageAlert(q *UsageQuota, level AlertLevel, now time.Time) *UsageAlert {
	a := &UsageAlert{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(q.TenantID, now),
		MetricType:          q.MetricType,
		Level:               level,
		CurrentValue:        q.CurrentValue,
		LimitValue:          q.LimitValue,
		Percentage:          UsagePercent(q.CurrentValue, q.LimitValue),
	}
	a.AddDomainEvent(NewUsageAlertRaisedEvent(a))
	return a
}

// Acknowledge marks the alert as seen. Acknowledging twice is a no-op.
func (a *UsageAlert) Acknowledge(by *uuid.UUID, now time.Time) {
	if a.Acknowledged {
		return
	}
	a.Acknowledged = true
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = by
	a.UpdatedAt = now
}
