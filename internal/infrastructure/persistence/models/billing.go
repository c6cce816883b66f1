package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/billing"
)

// UsageQuotaModel is the persistence model for a per-tenant, per-metric counter
type UsageQuotaModel struct {
	TenantAggregateModel
	MetricType   string    `gorm:"type:varchar(30);not null"`
	CurrentValue int64     `gorm:"not null;default:0"`
	LimitValue   int64     `gorm:"not null"`
	PeriodStart  time.Time `gorm:"not null"`
	PeriodEnd    time.Time `gorm:"not null;index"`
	LastResetAt  *time.Time
}

// TableName returns the table name for GORM
func (UsageQuotaModel) TableName() string {
	return "usage_quotas"
}

// ToDomain converts the persistence model to a domain UsageQuota
func (m *UsageQuotaModel) ToDomain() *billing.UsageQuota {
	return &billing.UsageQuota{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		MetricType:          billing.MetricType(m.MetricType),
		CurrentValue:        m.CurrentValue,
		LimitValue:          m.LimitValue,
		PeriodStart:         m.PeriodStart,
		PeriodEnd:           m.PeriodEnd,
		LastResetAt:         m.LastResetAt,
	}
}

// UsageQuotaModelFromDomain creates a persistence model from a domain UsageQuota
func UsageQuotaModelFromDomain(q *billing.UsageQuota) *UsageQuotaModel {
	m := &UsageQuotaModel{
		MetricType:   string(q.MetricType),
		CurrentValue: q.CurrentValue,
		LimitValue:   q.LimitValue,
		PeriodStart:  q.PeriodStart,
		PeriodEnd:    q.PeriodEnd,
		LastResetAt:  q.LastResetAt,
	}
	m.FromDomainTenantAggregateRoot(q.TenantAggregateRoot)
	return m
}

// UsageAlertModel is the persistence model for threshold alerts. A partial
// unique index (see persistence.AutoMigrate and the SQL migrations) keeps one
// open alert per tenant, metric and level.
type UsageAlertModel struct {
	TenantAggregateModel
	MetricType     string  `gorm:"type:varchar(30);not null"`
	Level          string  `gorm:"type:varchar(20);not null"`
	CurrentValue   int64   `gorm:"not null"`
	LimitValue     int64   `gorm:"not null"`
	Percentage     float64 `gorm:"not null"`
	Acknowledged   bool    `gorm:"not null;default:false;index"`
	AcknowledgedAt *time.Time
	AcknowledgedBy *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (UsageAlertModel) TableName() string {
	return "usage_alerts"
}

// ToDomain converts the persistence model to a domain UsageAlert
func (m *UsageAlertModel) ToDomain() *billing.UsageAlert {
	return &billing.UsageAlert{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		MetricType:          billing.MetricType(m.MetricType),
		Level:               billing.AlertLevel(m.Level),
		CurrentValue:        m.CurrentValue,
		LimitValue:          m.LimitValue,
		Percentage:          m.Percentage,
		Acknowledged:        m.Acknowledged,
		AcknowledgedAt:      m.AcknowledgedAt,
		AcknowledgedBy:      m.AcknowledgedBy,
	}
}

// UsageAlertModelFromDomain creates a persistence model from a domain UsageAlert
func UsageAlertModelFromDomain(a *billing.UsageAlert) *UsageAlertModel {
	m := &UsageAlertModel{
		MetricType:     string(a.MetricType),
		Level:          string(a.Level),
		CurrentValue:   a.CurrentValue,
		LimitValue:     a.LimitValue,
		Percentage:     a.Percentage,
		Acknowledged:   a.Acknowledged,
		AcknowledgedAt: a.AcknowledgedAt,
		AcknowledgedBy: a.AcknowledgedBy,
	}
	m.FromDomainTenantAggregateRoot(a.TenantAggregateRoot)
	return m
}
