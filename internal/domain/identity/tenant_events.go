package identity

import (
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeTenant = "Tenant"

// Event type constants
const (
	EventTypeTenantCreated         = "TenantCreated"
	EventTypeTenantStatusChanged   = "TenantStatusChanged"
	EventTypeTenantTierChanged     = "TenantTierChanged"
	EventTypeTenantLimitOverridden = "TenantLimitOverridden"
)

// TenantCreatedEvent is published when a tenant is provisioned
type TenantCreatedEvent struct {
	shared.BaseDomainEvent
	Code     string       `json:"code"`
	Name     string       `json:"name"`
	Status   TenantStatus `json:"status"`
	TierCode string       `json:"tier_code"`
}

// NewTenantCreatedEvent creates a new TenantCreatedEvent
func NewTenantCreatedEvent(t *Tenant) *TenantCreatedEvent {
	return &TenantCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTenantCreated, AggregateTypeTenant, t.ID, t.ID),
		Code:            t.Code,
		Name:            t.Name,
		Status:          t.Status,
		TierCode:        t.TierCode,
	}
}

// TenantStatusChangedEvent is published when a tenant's status changes
type TenantStatusChangedEvent struct {
	shared.BaseDomainEvent
	Code      string       `json:"code"`
	OldStatus TenantStatus `json:"old_status"`
	NewStatus TenantStatus `json:"new_status"`
}

// NewTenantStatusChangedEvent creates a new TenantStatusChangedEvent
func NewTenantStatusChangedEvent(t *Tenant, oldStatus, newStatus TenantStatus) *TenantStatusChangedEvent {
	return &TenantStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTenantStatusChanged, AggregateTypeTenant, t.ID, t.ID),
		Code:            t.Code,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
	}
}

// TenantTierChangedEvent is published when a tenant moves to another tier
type TenantTierChangedEvent struct {
	shared.BaseDomainEvent
	Code          string                `json:"code"`
	OldTier       string                `json:"old_tier"`
	NewTier       string                `json:"new_tier"`
	BillingPeriod billing.BillingPeriod `json:"billing_period"`
}

// NewTenantTierChangedEvent creates a new TenantTierChangedEvent
func NewTenantTierChangedEvent(t *Tenant, oldTier, newTier string) *TenantTierChangedEvent {
	return &TenantTierChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTenantTierChanged, AggregateTypeTenant, t.ID, t.ID),
		Code:            t.Code,
		OldTier:         oldTier,
		NewTier:         newTier,
		BillingPeriod:   t.BillingPeriod,
	}
}

// TenantLimitOverriddenEvent is published when an admin sets or clears a limit override.
// Value is nil when the override was cleared.
type TenantLimitOverriddenEvent struct {
	shared.BaseDomainEvent
	MetricType billing.MetricType `json:"metric_type"`
	Value      *int64             `json:"value,omitempty"`
	Reason     string             `json:"reason,omitempty"`
}

// NewTenantLimitOverriddenEvent creates a new TenantLimitOverriddenEvent
func NewTenantLimitOverriddenEvent(t *Tenant, metric billing.MetricType, value *int64, reason string) *TenantLimitOverriddenEvent {
	return &TenantLimitOverriddenEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTenantLimitOverridden, AggregateTypeTenant, t.ID, t.ID),
		MetricType:      metric,
		Value:           value,
		Reason:          reason,
	}
}
