package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/shared"
)

// QuotaDTO is the wire view of a usage quota
type QuotaDTO struct {
	ID              uuid.UUID  `json:"id"`
	TenantID        uuid.UUID  `json:"tenant_id"`
	MetricType      string     `json:"metric_type"`
	DisplayName     string     `json:"display_name"`
	Unit            string     `json:"unit"`
	CurrentValue    int64      `json:"current_value"`
	LimitValue      int64      `json:"limit_value"`
	Unlimited       bool       `json:"unlimited"`
	Percentage      *float64   `json:"percentage"`
	PercentageLabel string     `json:"percentage_label"`
	FormattedUsage  string     `json:"formatted_usage"`
	FormattedLimit  string     `json:"formatted_limit"`
	PeriodStart     time.Time  `json:"period_start"`
	PeriodEnd       time.Time  `json:"period_end"`
	LastResetAt     *time.Time `json:"last_reset_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// LimitCheckDTO answers whether the tenant may add one more unit
type LimitCheckDTO struct {
	MetricType string   `json:"metric_type"`
	CanAdd     bool     `json:"can_add"`
	Current    int64    `json:"current"`
	Limit      int64    `json:"limit"`
	Available  int64    `json:"available"`
	Percentage *float64 `json:"percentage"`
	Unlimited  bool     `json:"unlimited"`
	Label      string   `json:"label"`
}

// AlertDTO is the wire view of a usage alert
type AlertDTO struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	MetricType     string     `json:"metric_type"`
	Level          string     `json:"level"`
	CurrentValue   int64      `json:"current_value"`
	LimitValue     int64      `json:"limit_value"`
	Percentage     float64    `json:"percentage"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// RecordUsageResult is returned by RecordUsage
type RecordUsageResult struct {
	Quota         QuotaDTO  `json:"quota"`
	PreviousValue int64     `json:"previous_value"`
	OverLimit     bool      `json:"over_limit"`
	RolledOver    bool      `json:"rolled_over"`
	Alert         *AlertDTO `json:"alert,omitempty"`
}

// ResetSummary reports one run of the monthly reset job
type ResetSummary struct {
	Claimed int `json:"claimed"`
	Reset   int `json:"reset"`
	Batches int `json:"batches"`
}

// AlertListResult is a page of alerts
type AlertListResult = shared.Paginated[AlertDTO]

// ToQuotaDTO converts a quota
func ToQuotaDTO(q *billing.UsageQuota) QuotaDTO {
	check := q.Check()
	unit := q.MetricType.Unit()
	return QuotaDTO{
		ID:              q.ID,
		TenantID:        q.TenantID,
		MetricType:      string(q.MetricType),
		DisplayName:     q.MetricType.DisplayName(),
		Unit:            string(unit),
		CurrentValue:    q.CurrentValue,
		LimitValue:      q.LimitValue,
		Unlimited:       check.Unlimited,
		Percentage:      check.Percentage,
		PercentageLabel: check.PercentageLabel(),
		FormattedUsage:  unit.FormatValue(q.CurrentValue),
		FormattedLimit:  unit.FormatValue(q.LimitValue),
		PeriodStart:     q.PeriodStart,
		PeriodEnd:       q.PeriodEnd,
		LastResetAt:     q.LastResetAt,
		UpdatedAt:       q.UpdatedAt,
	}
}

// ToQuotaDTOs converts a list of quotas
func ToQuotaDTOs(quotas []*billing.UsageQuota) []QuotaDTO {
	out := make([]QuotaDTO, len(quotas))
	for i, q := range quotas {
		out[i] = ToQuotaDTO(q)
	}
	return out
}

func toLimitCheckDTO(c billing.QuotaCheck) LimitCheckDTO {
	return LimitCheckDTO{
		MetricType: string(c.MetricType),
		CanAdd:     c.CanAdd,
		Current:    c.Current,
		Limit:      c.Limit,
		Available:  c.Available,
		Percentage: c.Percentage,
		Unlimited:  c.Unlimited,
		Label:      c.PercentageLabel(),
	}
}

// ToAlertDTO converts an alert
func ToAlertDTO(a *billing.UsageAlert) AlertDTO {
	return AlertDTO{
		ID:             a.ID,
		TenantID:       a.TenantID,
		MetricType:     string(a.MetricType),
		Level:          string(a.Level),
		CurrentValue:   a.CurrentValue,
		LimitValue:     a.LimitValue,
		Percentage:     a.Percentage,
		Acknowledged:   a.Acknowledged,
		AcknowledgedAt: a.AcknowledgedAt,
		CreatedAt:      a.CreatedAt,
	}
}
