package models

import (
	"time"

	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/identity"
	"gorm.io/datatypes"
)

// TenantModel is the persistence model for the Tenant aggregate
type TenantModel struct {
	AggregateModel
	Code               string                `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name               string                `gorm:"type:varchar(200);not null"`
	ContactEmail       string                `gorm:"type:varchar(200)"`
	TierCode           string                `gorm:"type:varchar(50);not null;index"`
	Status             identity.TenantStatus `gorm:"type:varchar(20);not null;index"`
	BillingPeriod      string                `gorm:"type:varchar(20);not null;default:'monthly'"`
	MaxUsers           int64                 `gorm:"not null"`
	MaxBranches        int64                 `gorm:"not null"`
	MaxStorageBytes    int64                 `gorm:"not null"`
	MaxAPICalls        int64                 `gorm:"column:max_api_calls;not null"`
	LimitOverrides     datatypes.JSON        `gorm:"type:jsonb"`
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEndsAt        *time.Time
	CancelledAt        *time.Time `gorm:"index"`
	Notes              string     `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (TenantModel) TableName() string {
	return "tenants"
}

// ToDomain converts the persistence model to a domain Tenant
func (m *TenantModel) ToDomain() *identity.Tenant {
	overrides := fromJSON[map[billing.MetricType]identity.LimitOverride](m.LimitOverrides)
	if overrides == nil {
		overrides = make(map[billing.MetricType]identity.LimitOverride)
	}
	return &identity.Tenant{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Code:              m.Code,
		Name:              m.Name,
		ContactEmail:      m.ContactEmail,
		TierCode:          m.TierCode,
		Status:            m.Status,
		BillingPeriod:     billing.BillingPeriod(m.BillingPeriod),
		Limits: identity.TenantLimits{
			MaxUsers:        m.MaxUsers,
			MaxBranches:     m.MaxBranches,
			MaxStorageBytes: m.MaxStorageBytes,
			MaxAPICalls:     m.MaxAPICalls,
		},
		LimitOverrides:     overrides,
		CurrentPeriodStart: m.CurrentPeriodStart,
		CurrentPeriodEnd:   m.CurrentPeriodEnd,
		TrialEndsAt:        m.TrialEndsAt,
		CancelledAt:        m.CancelledAt,
		Notes:              m.Notes,
	}
}

// TenantModelFromDomain creates a persistence model from a domain Tenant
func TenantModelFromDomain(t *identity.Tenant) *TenantModel {
	m := &TenantModel{
		Code:               t.Code,
		Name:               t.Name,
		ContactEmail:       t.ContactEmail,
		TierCode:           t.TierCode,
		Status:             t.Status,
		BillingPeriod:      string(t.BillingPeriod),
		MaxUsers:           t.Limits.MaxUsers,
		MaxBranches:        t.Limits.MaxBranches,
		MaxStorageBytes:    t.Limits.MaxStorageBytes,
		MaxAPICalls:        t.Limits.MaxAPICalls,
		LimitOverrides:     toJSON(t.LimitOverrides),
		CurrentPeriodStart: t.CurrentPeriodStart,
		CurrentPeriodEnd:   t.CurrentPeriodEnd,
		TrialEndsAt:        t.TrialEndsAt,
		CancelledAt:        t.CancelledAt,
		Notes:              t.Notes,
	}
	m.FromDomainAggregateRoot(t.BaseAggregateRoot)
	return m
}

// TierModel is the persistence model for the tier catalogue
type TierModel struct {
	Code         string         `gorm:"type:varchar(50);primaryKey"`
	Name         string         `gorm:"type:varchar(100);not null"`
	Description  string         `gorm:"type:text"`
	MonthlyPrice int64          `gorm:"not null;default:0"`
	YearlyPrice  int64          `gorm:"not null;default:0"`
	Currency     string         `gorm:"type:varchar(3);not null;default:'USD'"`
	Limits       datatypes.JSON `gorm:"type:jsonb;not null"`
	SortOrder    int            `gorm:"not null;default:0"`
	IsActive     bool           `gorm:"not null"`
	CreatedAt    time.Time      `gorm:"not null"`
	UpdatedAt    time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TierModel) TableName() string {
	return "tiers"
}

// ToDomain converts the persistence model to a domain Tier
func (m *TierModel) ToDomain() *billing.Tier {
	limits := fromJSON[map[billing.MetricType]int64](m.Limits)
	if limits == nil {
		limits = make(map[billing.MetricType]int64)
	}
	return &billing.Tier{
		Code:         m.Code,
		Name:         m.Name,
		Description:  m.Description,
		MonthlyPrice: m.MonthlyPrice,
		YearlyPrice:  m.YearlyPrice,
		Currency:     m.Currency,
		Limits:       limits,
		SortOrder:    m.SortOrder,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// TierModelFromDomain creates a persistence model from a domain Tier
func TierModelFromDomain(t *billing.Tier) *TierModel {
	return &TierModel{
		Code:         t.Code,
		Name:         t.Name,
		Description:  t.Description,
		MonthlyPrice: t.MonthlyPrice,
		YearlyPrice:  t.YearlyPrice,
		Currency:     t.Currency,
		Limits:       toJSON(t.Limits),
		SortOrder:    t.SortOrder,
		IsActive:     t.IsActive,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}
