package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/shared"
)

// ProvisionTenantInput contains input for provisioning a tenant
type ProvisionTenantInput struct {
	Code         string
	Name         string
	ContactEmail string
	TierCode     string
	TrialDays    int // If > 0, creates a trial tenant
	Notes        string
}

// UpdateTenantInput contains input for editing descriptive fields
type UpdateTenantInput struct {
	Name         string
	ContactEmail string
	Notes        *string
}

// ChangeTierInput contains input for a direct admin tier change
type ChangeTierInput struct {
	TierCode      string
	BillingPeriod billing.BillingPeriod
}

// SetLimitOverrideInput contains input for overriding one limit
type SetLimitOverrideInput struct {
	MetricType billing.MetricType
	Value      int64
	Reason     string
	SetBy      *uuid.UUID
}

// TenantDTO represents tenant data transfer object
type TenantDTO struct {
	ID                 uuid.UUID                   `json:"id"`
	Code               string                      `json:"code"`
	Name               string                      `json:"name"`
	ContactEmail       string                      `json:"contact_email,omitempty"`
	TierCode           string                      `json:"tier_code"`
	Status             string                      `json:"status"`
	BillingPeriod      string                      `json:"billing_period"`
	Limits             identity.TenantLimits       `json:"limits"`
	LimitOverrides     map[string]LimitOverrideDTO `json:"limit_overrides,omitempty"`
	CurrentPeriodStart *time.Time                  `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time                  `json:"current_period_end,omitempty"`
	TrialEndsAt        *time.Time                  `json:"trial_ends_at,omitempty"`
	CancelledAt        *time.Time                  `json:"cancelled_at,omitempty"`
	Notes              string                      `json:"notes,omitempty"`
	Version            int                         `json:"version"`
	CreatedAt          time.Time                   `json:"created_at"`
	UpdatedAt          time.Time                   `json:"updated_at"`
}

// LimitOverrideDTO represents one admin override
type LimitOverrideDTO struct {
	Value  int64      `json:"value"`
	Reason string     `json:"reason,omitempty"`
	SetBy  *uuid.UUID `json:"set_by,omitempty"`
	SetAt  time.Time  `json:"set_at"`
}

// TenantListResult is a page of tenants
type TenantListResult = shared.Paginated[TenantDTO]

// TierDTO represents a catalogue entry
type TierDTO struct {
	Code         string           `json:"code"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	MonthlyPrice int64            `json:"monthly_price"`
	YearlyPrice  int64            `json:"yearly_price"`
	Currency     string           `json:"currency"`
	Limits       map[string]int64 `json:"limits"`
	SortOrder    int              `json:"sort_order"`
	IsActive     bool             `json:"is_active"`
}

// UpdateTierInput contains input for editing a tier. Nil fields are left unchanged.
type UpdateTierInput struct {
	Name         *string
	Description  *string
	MonthlyPrice *int64
	YearlyPrice  *int64
	Limits       map[billing.MetricType]int64
	IsActive     *bool
}

func toTenantDTO(t *identity.Tenant) *TenantDTO {
	dto := &TenantDTO{
		ID:                 t.ID,
		Code:               t.Code,
		Name:               t.Name,
		ContactEmail:       t.ContactEmail,
		TierCode:           t.TierCode,
		Status:             string(t.Status),
		BillingPeriod:      string(t.BillingPeriod),
		Limits:             t.Limits,
		CurrentPeriodStart: t.CurrentPeriodStart,
		CurrentPeriodEnd:   t.CurrentPeriodEnd,
		TrialEndsAt:        t.TrialEndsAt,
		CancelledAt:        t.CancelledAt,
		Notes:              t.Notes,
		Version:            t.Version,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
	if len(t.LimitOverrides) > 0 {
		dto.LimitOverrides = make(map[string]LimitOverrideDTO, len(t.LimitOverrides))
		for m, o := range t.LimitOverrides {
			dto.LimitOverrides[string(m)] = LimitOverrideDTO(o)
		}
	}
	return dto
}

// ToTierDTO converts a tier
func ToTierDTO(t *billing.Tier) TierDTO {
	limits := make(map[string]int64, len(billing.AllMetricTypes()))
	for _, m := range billing.AllMetricTypes() {
		limits[string(m)] = t.LimitFor(m)
	}
	return TierDTO{
		Code:         t.Code,
		Name:         t.Name,
		Description:  t.Description,
		MonthlyPrice: t.MonthlyPrice,
		YearlyPrice:  t.YearlyPrice,
		Currency:     t.Currency,
		Limits:       limits,
		SortOrder:    t.SortOrder,
		IsActive:     t.IsActive,
	}
}
