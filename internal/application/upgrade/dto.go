package upgrade

import (
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/domain/upgrade"
)

// CreateRequestInput contains input for opening an upgrade request
type CreateRequestInput struct {
	TargetTierCode string
	BillingPeriod  billing.BillingPeriod
	CouponCode     string
	RequestedBy    *uuid.UUID
}

// ReviewAction is the admin decision on a request
type ReviewAction string

const (
	ReviewApprove ReviewAction = "approve"
	ReviewReject  ReviewAction = "reject"
)

// ReviewInput contains the admin decision. RejectionReason is shown to the
// tenant, Notes never are.
type ReviewInput struct {
	Action          ReviewAction
	Notes           string
	RejectionReason string
	ReviewedBy      uuid.UUID
}

// QuoteDTO is the priced preview of a tier change
type QuoteDTO struct {
	CurrentTierCode string `json:"current_tier_code"`
	TargetTierCode  string `json:"target_tier_code"`
	BillingPeriod   string `json:"billing_period"`
	Direction       string `json:"direction"`
	ListPrice       int64  `json:"list_price"`
	ProrationCredit int64  `json:"proration_credit"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	RemainingDays   int    `json:"remaining_days"`
}

// RequestDTO represents an upgrade request
type RequestDTO struct {
	ID                 uuid.UUID  `json:"id"`
	RequestNumber      string     `json:"request_number"`
	TenantID           uuid.UUID  `json:"tenant_id"`
	CurrentTierCode    string     `json:"current_tier_code"`
	TargetTierCode     string     `json:"target_tier_code"`
	BillingPeriod      string     `json:"billing_period"`
	Direction          string     `json:"direction"`
	ListPrice          int64      `json:"list_price"`
	ProrationCredit    int64      `json:"proration_credit"`
	Amount             int64      `json:"amount"`
	Currency           string     `json:"currency"`
	CouponCode         string     `json:"coupon_code,omitempty"`
	Status             string     `json:"status"`
	CanReview          bool       `json:"can_review"`
	PaymentProofFileID string     `json:"payment_proof_file_id,omitempty"`
	ProofUploadedAt    *time.Time `json:"proof_uploaded_at,omitempty"`
	TransactionID      *uuid.UUID `json:"transaction_id,omitempty"`
	RejectionReason    string     `json:"rejection_reason,omitempty"`
	ReviewNotes        string     `json:"review_notes,omitempty"`
	ClaimedBy          *uuid.UUID `json:"claimed_by,omitempty"`
	ReviewedBy         *uuid.UUID `json:"reviewed_by,omitempty"`
	ReviewedAt         *time.Time `json:"reviewed_at,omitempty"`
	CancelReason       string     `json:"cancel_reason,omitempty"`
	ExpiresAt          time.Time  `json:"expires_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
	Version            int        `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TenantView strips internal review data
func (d RequestDTO) TenantView() RequestDTO {
	d.ReviewNotes = ""
	d.ClaimedBy = nil
	d.ReviewedBy = nil
	return d
}

// RequestListResult is a page of requests
type RequestListResult = shared.Paginated[RequestDTO]

func toQuoteDTO(q upgrade.Quote) *QuoteDTO {
	return &QuoteDTO{
		CurrentTierCode: q.CurrentTierCode,
		TargetTierCode:  q.TargetTierCode,
		BillingPeriod:   string(q.BillingPeriod),
		Direction:       string(q.Direction),
		ListPrice:       q.ListPrice,
		ProrationCredit: q.ProrationCredit,
		Amount:          q.Amount,
		Currency:        q.Currency,
		RemainingDays:   q.RemainingDays,
	}
}

// ToRequestDTO converts a request with internal review data
func ToRequestDTO(r *upgrade.UpgradeRequest) RequestDTO {
	return RequestDTO{
		ID:                 r.ID,
		RequestNumber:      r.RequestNumber,
		TenantID:           r.TenantID,
		CurrentTierCode:    r.CurrentTierCode,
		TargetTierCode:     r.TargetTierCode,
		BillingPeriod:      string(r.BillingPeriod),
		Direction:          string(r.Direction),
		ListPrice:          r.ListPrice,
		ProrationCredit:    r.ProrationCredit,
		Amount:             r.Amount,
		Currency:           r.Currency,
		CouponCode:         r.CouponCode,
		Status:             string(r.Status),
		CanReview:          r.CanReview(),
		PaymentProofFileID: r.PaymentProofFileID,
		ProofUploadedAt:    r.ProofUploadedAt,
		TransactionID:      r.TransactionID,
		RejectionReason:    r.RejectionReason,
		ReviewNotes:        r.ReviewNotes,
		ClaimedBy:          r.ClaimedBy,
		ReviewedBy:         r.ReviewedBy,
		ReviewedAt:         r.ReviewedAt,
		CancelReason:       r.CancelReason,
		ExpiresAt:          r.ExpiresAt,
		ClosedAt:           r.ClosedAt,
		Version:            r.Version,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}
