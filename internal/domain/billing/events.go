package billing

import (
	"github.com/subgov/backend/internal/domain/shared"
)

// Aggregate type constants
const (
	AggregateTypeUsageQuota = "UsageQuota"
	AggregateTypeUsageAlert = "UsageAlert"
)

// Event type constants
const (
	EventTypeUsageAlertRaised      = "UsageAlertRaised"
	EventTypeUsageQuotaReset       = "UsageQuotaReset"
	EventTypeUsageQuotaLimitSynced = "UsageQuotaLimitSynced"
)

// UsageAlertRaisedEvent is published when a quota crosses a threshold.
// The notification dispatcher turns it into a tenant-visible message.
type UsageAlertRaisedEvent struct {
	shared.BaseDomainEvent
	AlertID      string     `json:"alert_id"`
	MetricType   MetricType `json:"metric_type"`
	Level        AlertLevel `json:"level"`
	CurrentValue int64      `json:"current_value"`
	LimitValue   int64      `json:"limit_value"`
	Percentage   float64    `json:"percentage"`
}

// NewUsageAlertRaisedEvent creates a new UsageAlertRaisedEvent
func NewUsageAlertRaisedEvent(a *UsageAlert) *UsageAlertRaisedEvent {
	return &UsageAlertRaisedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeUsageAlertRaised, AggregateTypeUsageAlert, a.ID, a.TenantID),
		AlertID:         a.ID.String(),
		MetricType:      a.MetricType,
		Level:           a.Level,
		CurrentValue:    a.CurrentValue,
		LimitValue:      a.LimitValue,
		Percentage:      a.Percentage,
	}
}

// UsageQuotaResetEvent is published when a counter is zeroed by an admin or a period rollover
type UsageQuotaResetEvent struct {
	shared.BaseDomainEvent
	MetricType    MetricType `json:"metric_type"`
	PreviousValue int64      `json:"previous_value"`
	Reason        string     `json:"reason"`
}

// Reset reasons
const (
	ResetReasonAdmin    = "admin"
	ResetReasonRollover = "period_rollover"
)

// NewUsageQuotaResetEvent creates a new UsageQuotaResetEvent
func NewUsageQuotaResetEvent(q *UsageQuota, previous int64, reason string) *UsageQuotaResetEvent {
	return &UsageQuotaResetEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeUsageQuotaReset, AggregateTypeUsageQuota, q.ID, q.TenantID),
		MetricType:      q.MetricType,
		PreviousValue:   previous,
		Reason:          reason,
	}
}

// UsageQuotaLimitSyncedEvent is published when a tier sync changes a limit
type UsageQuotaLimitSyncedEvent struct {
	shared.BaseDomainEvent
	MetricType    MetricType `json:"metric_type"`
	PreviousLimit int64      `json:"previous_limit"`
	NewLimit      int64      `json:"new_limit"`
	Overridden    bool       `json:"overridden"`
}

// NewUsageQuotaLimitSyncedEvent creates a new UsageQuotaLimitSyncedEvent
func NewUsageQuotaLimitSyncedEvent(q *UsageQuota, previous int64, overridden bool) *UsageQuotaLimitSyncedEvent {
	return &UsageQuotaLimitSyncedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeUsageQuotaLimitSynced, AggregateTypeUsageQuota, q.ID, q.TenantID),
		MetricType:      q.MetricType,
		PreviousLimit:   previous,
		NewLimit:        q.LimitValue,
		Overridden:      overridden,
	}
}
