package identity

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/shared"
)

// TenantStatus represents the subscription status of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusExpired   TenantStatus = "expired"
	TenantStatusCancelled TenantStatus = "cancelled"
	TenantStatusSuspended TenantStatus = "suspended"
)

// AllTenantStatuses returns every status
func AllTenantStatuses() []TenantStatus {
	return []TenantStatus{
		TenantStatusActive, TenantStatusTrial, TenantStatusExpired,
		TenantStatusCancelled, TenantStatusSuspended,
	}
}

// IsValid returns true for known statuses
func (s TenantStatus) IsValid() bool {
	switch s {
	case TenantStatusActive, TenantStatusTrial, TenantStatusExpired,
		TenantStatusCancelled, TenantStatusSuspended:
		return true
	}
	return false
}

// IsChurned is true for statuses that count as lost customers
func (s TenantStatus) IsChurned() bool {
	return s == TenantStatusCancelled || s == TenantStatusExpired
}

// TenantLimits are the resource ceilings in effect for a tenant (-1 = unlimited)
type TenantLimits struct {
	MaxUsers        int64 `json:"max_users"`
	MaxBranches     int64 `json:"max_branches"`
	MaxStorageBytes int64 `json:"max_storage_bytes"`
	MaxAPICalls     int64 `json:"max_api_calls"`
}

// LimitOverride is an admin decision that replaces the tier default for one metric
type LimitOverride struct {
	Value  int64      `json:"value"`
	Reason string     `json:"reason,omitempty"`
	SetBy  *uuid.UUID `json:"set_by,omitempty"`
	SetAt  time.Time  `json:"set_at"`
}

var tenantCodePattern = regexp.MustCompile(`^[A-Z0-9_-]+$`)

// Tenant is a customer organization; the unit of billing and quota isolation
type Tenant struct {
	shared.BaseAggregateRoot
	Code               string
	Name               string
	ContactEmail       string
	TierCode           string
	Status             TenantStatus
	BillingPeriod      billing.BillingPeriod
	Limits             TenantLimits
	LimitOverrides     map[billing.MetricType]LimitOverride
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEndsAt        *time.Time
	CancelledAt        *time.Time
	Notes              string
}

// NewTenant creates an active tenant on tier
func NewTenant(code, name string, tier *billing.Tier, now time.Time) (*Tenant, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := validateTenantCode(code); err != nil {
		return nil, err
	}
	if err := validateTenantName(name); err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, shared.NewValidationError("INVALID_TIER", "Tier is required")
	}

	t := &Tenant{
		BaseAggregateRoot: shared.NewBaseAggregateRootAt(now),
		Code:              code,
		Name:              strings.TrimSpace(name),
		TierCode:          tier.Code,
		Status:            TenantStatusActive,
		BillingPeriod:     billing.BillingPeriodMonthly,
		LimitOverrides:    make(map[billing.MetricType]LimitOverride),
	}
	t.startPeriod(now)
	t.ApplyTierLimits(tier)
	t.AddDomainEvent(NewTenantCreatedEvent(t))
	return t, nil
}

// NewTrialTenant creates a tenant in trial status for trialDays
func NewTrialTenant(code, name string, tier *billing.Tier, trialDays int, now time.Time) (*Tenant, error) {
	if trialDays <= 0 {
		return nil, shared.NewValidationError("INVALID_TRIAL_DAYS", "Trial days must be positive")
	}
	t, err := NewTenant(code, name, tier, now)
	if err != nil {
		return nil, err
	}
	ends := now.AddDate(0, 0, trialDays)
	t.Status = TenantStatusTrial
	t.TrialEndsAt = &ends
	return t, nil
}

func (t *Tenant) startPeriod(now time.Time) {
	start := now
	end := t.BillingPeriod.AddTo(now)
	t.CurrentPeriodStart = &start
	t.CurrentPeriodEnd = &end
}

// Update changes descriptive fields
func (t *Tenant) Update(name, contactEmail string, now time.Time) error {
	if err := validateTenantName(name); err != nil {
		return err
	}
	if len(contactEmail) > 200 {
		return shared.NewValidationError("INVALID_EMAIL", "Email cannot exceed 200 characters")
	}
	t.Name = strings.TrimSpace(name)
	t.ContactEmail = contactEmail
	t.UpdatedAt = now
	t.IncrementVersion()
	return nil
}

// ChangeTier moves the tenant onto tier for a fresh period and activates it.
// Quota limits must be re-synced in the same unit of work.
func (t *Tenant) ChangeTier(tier *billing.Tier, period billing.BillingPeriod, now time.Time) error {
	if tier == nil || !tier.IsActive {
		return shared.NewValidationError("INVALID_TIER", "Target tier is not available")
	}
	if !period.IsValid() {
		return shared.NewValidationError("INVALID_BILLING_PERIOD", "Billing period must be monthly or yearly")
	}

	oldTier := t.TierCode
	oldStatus := t.Status
	t.TierCode = tier.Code
	t.BillingPeriod = period
	t.startPeriod(now)
	t.Status = TenantStatusActive
	t.TrialEndsAt = nil
	t.CancelledAt = nil
	t.ApplyTierLimits(tier)
	t.UpdatedAt = now
	t.IncrementVersion()

	t.AddDomainEvent(NewTenantTierChangedEvent(t, oldTier, tier.Code))
	if oldStatus != TenantStatusActive {
		t.AddDomainEvent(NewTenantStatusChangedEvent(t, oldStatus, TenantStatusActive))
	}
	return nil
}

// ExtendPeriod pushes the current period end out by days (bonus days)
func (t *Tenant) ExtendPeriod(days int, now time.Time) {
	if days <= 0 {
		return
	}
	if t.CurrentPeriodEnd == nil {
		t.startPeriod(now)
	}
	end := t.CurrentPeriodEnd.AddDate(0, 0, days)
	t.CurrentPeriodEnd = &end
	t.UpdatedAt = now
	t.IncrementVersion()
}

// EffectiveLimit returns the override for metric if one is recorded, else the tier default
func (t *Tenant) EffectiveLimit(tier *billing.Tier, metric billing.MetricType) (int64, bool) {
	if o, ok := t.LimitOverrides[metric]; ok {
		return o.Value, true
	}
	return tier.LimitFor(metric), false
}

// ApplyTierLimits recomputes Limits from tier defaults and recorded overrides
func (t *Tenant) ApplyTierLimits(tier *billing.Tier) {
	get := func(m billing.MetricType) int64 {
		v, _ := t.EffectiveLimit(tier, m)
		return v
	}
	t.Limits = TenantLimits{
		MaxUsers:        get(billing.MetricActiveUsers),
		MaxBranches:     get(billing.MetricBranches),
		MaxStorageBytes: get(billing.MetricStorageBytes),
		MaxAPICalls:     get(billing.MetricAPICalls),
	}
}

// SetLimitOverride records an admin override for metric
func (t *Tenant) SetLimitOverride(metric billing.MetricType, value int64, reason string, by *uuid.UUID, now time.Time) error {
	if !metric.IsValid() {
		return shared.NewValidationError("INVALID_METRIC_TYPE", "Unknown metric type: "+string(metric))
	}
	if err := billing.ValidateLimit(value); err != nil {
		return err
	}
	if t.LimitOverrides == nil {
		t.LimitOverrides = make(map[billing.MetricType]LimitOverride)
	}
	t.LimitOverrides[metric] = LimitOverride{Value: value, Reason: reason, SetBy: by, SetAt: now}
	t.UpdatedAt = now
	t.IncrementVersion()
	t.AddDomainEvent(NewTenantLimitOverriddenEvent(t, metric, &value, reason))
	return nil
}

// ClearLimitOverride removes the override for metric. Returns false if none was set.
func (t *Tenant) ClearLimitOverride(metric billing.MetricType, now time.Time) bool {
	if _, ok := t.LimitOverrides[metric]; !ok {
		return false
	}
	delete(t.LimitOverrides, metric)
	t.UpdatedAt = now
	t.IncrementVersion()
	t.AddDomainEvent(NewTenantLimitOverriddenEvent(t, metric, nil, "cleared"))
	return true
}

// ChangeStatus moves the tenant to status
func (t *Tenant) ChangeStatus(status TenantStatus, now time.Time) error {
	if !status.IsValid() {
		return shared.NewValidationError("INVALID_STATUS", "Unknown tenant status: "+string(status))
	}
	if t.Status == status {
		return shared.NewInvalidTransitionError("tenant", string(t.Status), "set status "+string(status)+" on")
	}
	old := t.Status
	t.Status = status
	switch {
	case status.IsChurned():
		// CancelledAt doubles as the churn timestamp for reporting
		t.CancelledAt = &now
	case status == TenantStatusActive:
		t.CancelledAt = nil
		t.TrialEndsAt = nil
	}
	t.UpdatedAt = now
	t.IncrementVersion()
	t.AddDomainEvent(NewTenantStatusChangedEvent(t, old, status))
	return nil
}

// IsActive returns true if the tenant is active
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// IsTrialExpired returns true if a trial tenant's trial has run out
func (t *Tenant) IsTrialExpired(now time.Time) bool {
	return t.Status == TenantStatusTrial && t.TrialEndsAt != nil && now.After(*t.TrialEndsAt)
}

// CanRequestUpgrade reports whether the tenant may start a tier change
func (t *Tenant) CanRequestUpgrade() bool {
	return t.Status != TenantStatusSuspended
}

func validateTenantCode(code string) error {
	if code == "" {
		return shared.NewValidationError("INVALID_CODE", "Tenant code cannot be empty")
	}
	if len(code) > 50 {
		return shared.NewValidationError("INVALID_CODE", "Tenant code cannot exceed 50 characters")
	}
	if !tenantCodePattern.MatchString(code) {
		return shared.NewValidationError("INVALID_CODE", "Tenant code can only contain letters, numbers, underscores, and hyphens")
	}
	return nil
}

func validateTenantName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewValidationError("INVALID_NAME", "Tenant name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewValidationError("INVALID_NAME", "Tenant name cannot exceed 200 characters")
	}
	return nil
}
