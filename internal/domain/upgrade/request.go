package upgrade

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/shared"
)

// RequestStatus is the workflow state of an upgrade request
type RequestStatus string

const (
	StatusPending         RequestStatus = "pending"
	StatusPaymentUploaded RequestStatus = "payment_uploaded"
	StatusUnderReview     RequestStatus = "under_review"
	StatusApproved        RequestStatus = "approved"
	StatusRejected        RequestStatus = "rejected"
	StatusCancelled       RequestStatus = "cancelled"
	StatusExpired         RequestStatus = "expired"
)

// AllRequestStatuses returns every status
func AllRequestStatuses() []RequestStatus {
	return []RequestStatus{
		StatusPending, StatusPaymentUploaded, StatusUnderReview,
		StatusApproved, StatusRejected, StatusCancelled, StatusExpired,
	}
}

// OpenStatuses are the statuses of a request still in flight
func OpenStatuses() []RequestStatus {
	return []RequestStatus{StatusPending, StatusPaymentUploaded, StatusUnderReview}
}

// IsValid returns true for known statuses
func (s RequestStatus) IsValid() bool {
	for _, v := range AllRequestStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

// IsOpen is true while the request can still move
func (s RequestStatus) IsOpen() bool {
	return s == StatusPending || s == StatusPaymentUploaded || s == StatusUnderReview
}

// Action is a workflow edge
type Action string

const (
	ActionUploadProof Action = "upload_proof"
	ActionBeginReview Action = "begin_review"
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionCancel      Action = "cancel"
	ActionExpire      Action = "expire"
)

var transitions = map[RequestStatus]map[Action]RequestStatus{
	StatusPending: {
		ActionUploadProof: StatusPaymentUploaded,
		ActionCancel:      StatusCancelled,
		ActionExpire:      StatusExpired,
	},
	StatusPaymentUploaded: {
		ActionBeginReview: StatusUnderReview,
		ActionApprove:     StatusApproved,
		ActionReject:      StatusRejected,
		ActionCancel:      StatusCancelled,
		ActionExpire:      StatusExpired,
	},
	StatusUnderReview: {
		ActionApprove: StatusApproved,
		ActionReject:  StatusRejected,
	},
}

// Next returns the status reached from s by action
func (s RequestStatus) Next(action Action) (RequestStatus, bool) {
	next, ok := transitions[s][action]
	return next, ok
}

// UpgradeRequest is a tenant's request to move to another tier
type UpgradeRequest struct {
	shared.TenantAggregateRoot
	RequestNumber      string
	CurrentTierCode    string
	TargetTierCode     string
	BillingPeriod      billing.BillingPeriod
	Direction          Direction
	ListPrice          int64
	ProrationCredit    int64
	Amount             int64
	Currency           string
	CouponCode         string
	Status             RequestStatus
	PaymentProofFileID string
	ProofUploadedAt    *time.Time
	TransactionID      *uuid.UUID
	RequestedBy        *uuid.UUID
	ClaimedBy          *uuid.UUID
	ReviewStartedAt    *time.Time
	ReviewedBy         *uuid.UUID
	ReviewedAt         *time.Time
	// RejectionReason is shown to the tenant. ReviewNotes stay internal.
	RejectionReason string
	ReviewNotes     string
	CancelReason    string
	ExpiresAt       time.Time
	ClosedAt        *time.Time
}

// NewUpgradeRequest opens a pending request from a priced quote
func NewUpgradeRequest(tenantID uuid.UUID, number string, q Quote, couponCode string, requestedBy *uuid.UUID, ttl time.Duration, now time.Time) (*UpgradeRequest, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if strings.TrimSpace(number) == "" {
		return nil, shared.NewValidationError("INVALID_REQUEST_NUMBER", "Request number cannot be empty")
	}
	if ttl <= 0 {
		return nil, shared.NewValidationError("INVALID_TTL", "Request time-to-live must be positive")
	}
	r := &UpgradeRequest{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID, now),
		RequestNumber:       number,
		CurrentTierCode:     q.CurrentTierCode,
		TargetTierCode:      q.TargetTierCode,
		BillingPeriod:       q.BillingPeriod,
		Direction:           q.Direction,
		ListPrice:           q.ListPrice,
		ProrationCredit:     q.ProrationCredit,
		Amount:              q.Amount,
		Currency:            q.Currency,
		CouponCode:          strings.ToUpper(strings.TrimSpace(couponCode)),
		Status:              StatusPending,
		RequestedBy:         requestedBy,
		ExpiresAt:           now.Add(ttl),
	}
	r.AddDomainEvent(NewRequestCreatedEvent(r))
	return r, nil
}

func (r *UpgradeRequest) transition(action Action, now time.Time) (RequestStatus, error) {
	next, ok := r.Status.Next(action)
	if !ok {
		return r.Status, shared.NewInvalidTransitionError("upgrade request "+r.RequestNumber, string(r.Status), strings.ReplaceAll(string(action), "_", " "))
	}
	old := r.Status
	r.Status = next
	r.Touch(now)
	r.IncrementVersion()
	if !next.IsOpen() {
		r.ClosedAt = &now
	}
	return old, nil
}

// CanReview is true once a proof has been uploaded and no decision was made
func (r *UpgradeRequest) CanReview() bool {
	return r.Status == StatusPaymentUploaded || r.Status == StatusUnderReview
}

// IsExpired is true when an unreviewed request has outlived its deadline
func (r *UpgradeRequest) IsExpired(now time.Time) bool {
	_, ok := r.Status.Next(ActionExpire)
	return ok && !now.Before(r.ExpiresAt)
}

// UploadProof attaches the payment proof and links the ledger entry created for it
func (r *UpgradeRequest) UploadProof(fileID string, transactionID uuid.UUID, now time.Time) error {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return shared.NewValidationError("INVALID_FILE_ID", "Payment proof file ID cannot be empty")
	}
	if transactionID == uuid.Nil {
		return shared.NewValidationError("INVALID_TRANSACTION", "A billing transaction must be linked")
	}
	old, err := r.transition(ActionUploadProof, now)
	if err != nil {
		return err
	}
	r.PaymentProofFileID = fileID
	r.ProofUploadedAt = &now
	r.TransactionID = &transactionID
	r.AddDomainEvent(NewRequestStatusChangedEvent(EventTypeProofUploaded, r, old))
	return nil
}

// BeginReview lets an admin claim the request. Optional: approval also works
// straight from payment_uploaded.
func (r *UpgradeRequest) BeginReview(by uuid.UUID, now time.Time) error {
	old, err := r.transition(ActionBeginReview, now)
	if err != nil {
		return err
	}
	r.ClaimedBy = &by
	r.ReviewStartedAt = &now
	r.AddDomainEvent(NewRequestStatusChangedEvent(EventTypeReviewStarted, r, old))
	return nil
}

// Approve accepts the request. The linked transaction must exist.
func (r *UpgradeRequest) Approve(by uuid.UUID, notes string, now time.Time) error {
	if r.CanReview() && r.TransactionID == nil {
		return shared.NewValidationError("TRANSACTION_REQUIRED", "Request has no linked billing transaction")
	}
	old, err := r.transition(ActionApprove, now)
	if err != nil {
		return err
	}
	r.ReviewedBy = &by
	r.ReviewedAt = &now
	r.ReviewNotes = strings.TrimSpace(notes)
	r.AddDomainEvent(NewRequestStatusChangedEvent(EventTypeRequestApproved, r, old))
	return nil
}

// Reject declines the request with a tenant-facing reason and optional internal notes
func (r *UpgradeRequest) Reject(by uuid.UUID, reason, notes string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return shared.NewValidationError("REJECTION_REASON_REQUIRED", "A rejection reason is required")
	}
	old, err := r.transition(ActionReject, now)
	if err != nil {
		return err
	}
	r.ReviewedBy = &by
	r.ReviewedAt = &now
	r.RejectionReason = reason
	r.ReviewNotes = strings.TrimSpace(notes)
	r.AddDomainEvent(NewRequestStatusChangedEvent(EventTypeRequestRejected, r, old))
	return nil
}

// Cancel withdraws the request on the tenant's behalf
func (r *UpgradeRequest) Cancel(reason string, now time.Time) error {
	old, err := r.transition(ActionCancel, now)
	if err != nil {
		return err
	}
	r.CancelReason = strings.TrimSpace(reason)
	r.AddDomainEvent(NewRequestStatusChangedEvent(EventTypeRequestCancelled, r, old))
	return nil
}

// Expire closes a request past its deadline
func (r *UpgradeRequest) Expire(now time.Time) error {
	if _, ok := r.Status.Next(ActionExpire); ok && now.Before(r.ExpiresAt) {
		return shared.NewValidationError("NOT_EXPIRED", "Request has not reached its deadline")
	}
	old, err := r.transition(ActionExpire, now)
	if err != nil {
		return err
	}
	r.AddDomainEvent(NewRequestStatusChangedEvent(EventTypeRequestExpired, r, old))
	return nil
}
