package upgrade

import (
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/shared"
)

// AggregateTypeUpgradeRequest is the aggregate type of upgrade requests
const AggregateTypeUpgradeRequest = "UpgradeRequest"

// Event type constants
const (
	EventTypeRequestCreated   = "UpgradeRequestCreated"
	EventTypeProofUploaded    = "UpgradeRequestProofUploaded"
	EventTypeReviewStarted    = "UpgradeRequestReviewStarted"
	EventTypeRequestApproved  = "UpgradeRequestApproved"
	EventTypeRequestRejected  = "UpgradeRequestRejected"
	EventTypeRequestCancelled = "UpgradeRequestCancelled"
	EventTypeRequestExpired   = "UpgradeRequestExpired"
)

// RequestCreatedEvent is published when a tenant opens an upgrade request
type RequestCreatedEvent struct {
	shared.BaseDomainEvent
	RequestNumber   string                `json:"request_number"`
	CurrentTierCode string                `json:"current_tier_code"`
	TargetTierCode  string                `json:"target_tier_code"`
	BillingPeriod   billing.BillingPeriod `json:"billing_period"`
	Amount          int64                 `json:"amount"`
	Currency        string                `json:"currency"`
}

// NewRequestCreatedEvent creates a new RequestCreatedEvent
func NewRequestCreatedEvent(r *UpgradeRequest) *RequestCreatedEvent {
	return &RequestCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRequestCreated, AggregateTypeUpgradeRequest, r.ID, r.TenantID),
		RequestNumber:   r.RequestNumber,
		CurrentTierCode: r.CurrentTierCode,
		TargetTierCode:  r.TargetTierCode,
		BillingPeriod:   r.BillingPeriod,
		Amount:          r.Amount,
		Currency:        r.Currency,
	}
}

// RequestStatusChangedEvent is published on every workflow transition. It only
// carries the tenant-facing rejection reason, never the internal review notes.
type RequestStatusChangedEvent struct {
	shared.BaseDomainEvent
	RequestNumber   string        `json:"request_number"`
	TargetTierCode  string        `json:"target_tier_code"`
	OldStatus       RequestStatus `json:"old_status"`
	NewStatus       RequestStatus `json:"new_status"`
	TransactionID   string        `json:"transaction_id,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
}

// NewRequestStatusChangedEvent creates a status event of the given type
func NewRequestStatusChangedEvent(eventType string, r *UpgradeRequest, old RequestStatus) *RequestStatusChangedEvent {
	e := &RequestStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeUpgradeRequest, r.ID, r.TenantID),
		RequestNumber:   r.RequestNumber,
		TargetTierCode:  r.TargetTierCode,
		OldStatus:       old,
		NewStatus:       r.Status,
		RejectionReason: r.RejectionReason,
	}
	if r.TransactionID != nil {
		e.TransactionID = r.TransactionID.String()
	}
	return e
}
