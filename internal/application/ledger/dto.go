package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/coupon"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/shared"
)

// CreateManualInput contains input for an admin-created transaction
type CreateManualInput struct {
	TenantID       uuid.UUID
	Type           ledger.TransactionType
	Amount         int64
	Currency       string
	TargetTierCode string
	BillingPeriod  billing.BillingPeriod
	Description    string
	BonusDays      int
	RequiresReview bool
	// MarkPaid creates the transaction and approves it in the same unit of work
	MarkPaid  bool
	Note      string
	CreatedBy *uuid.UUID
}

// ManualDiscountInput is an admin discount, either a fixed amount or a percentage
type ManualDiscountInput struct {
	DiscountType coupon.DiscountType
	Value        decimal.Decimal
	Note         string
	By           *uuid.UUID
}

// TransactionDTO represents a ledger entry
type TransactionDTO struct {
	ID                uuid.UUID  `json:"id"`
	TransactionNumber string     `json:"transaction_number"`
	TenantID          uuid.UUID  `json:"tenant_id"`
	Type              string     `json:"type"`
	Status            string     `json:"status"`
	Source            string     `json:"source"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	CouponCode        string     `json:"coupon_code,omitempty"`
	CouponDiscount    int64      `json:"coupon_discount"`
	ManualDiscount    int64      `json:"manual_discount"`
	DiscountAmount    int64      `json:"discount_amount"`
	NetAmount         int64      `json:"net_amount"`
	BonusDays         int        `json:"bonus_days"`
	RequiresReview    bool       `json:"requires_review"`
	TargetTierCode    string     `json:"target_tier_code,omitempty"`
	BillingPeriod     string     `json:"billing_period,omitempty"`
	UpgradeRequestID  *uuid.UUID `json:"upgrade_request_id,omitempty"`
	Description       string     `json:"description,omitempty"`
	RejectionReason   string     `json:"rejection_reason,omitempty"`
	Notes             []NoteDTO  `json:"notes,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	RejectedAt        *time.Time `json:"rejected_at,omitempty"`
	RefundedAt        *time.Time `json:"refunded_at,omitempty"`
	Version           int        `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NoteDTO is one admin note
type NoteDTO struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// TenantView strips admin-only fields
func (d TransactionDTO) TenantView() TransactionDTO {
	d.Notes = nil
	return d
}

// TransactionListResult is a page of transactions
type TransactionListResult = shared.Paginated[TransactionDTO]

// ToTransactionDTO converts a ledger entry
func ToTransactionDTO(t *ledger.BillingTransaction) TransactionDTO {
	notes := make([]NoteDTO, len(t.Notes))
	for i, n := range t.Notes {
		notes[i] = NoteDTO(n)
	}
	return TransactionDTO{
		ID:                t.ID,
		TransactionNumber: t.TransactionNumber,
		TenantID:          t.TenantID,
		Type:              string(t.Type),
		Status:            string(t.Status),
		Source:            string(t.Source),
		Amount:            t.Amount,
		Currency:          t.Currency,
		CouponCode:        t.CouponCode,
		CouponDiscount:    t.CouponDiscount,
		ManualDiscount:    t.ManualDiscount,
		DiscountAmount:    t.DiscountAmount,
		NetAmount:         t.NetAmount(),
		BonusDays:         t.BonusDays,
		RequiresReview:    t.RequiresReview,
		TargetTierCode:    t.TargetTierCode,
		BillingPeriod:     string(t.BillingPeriod),
		UpgradeRequestID:  t.UpgradeRequestID,
		Description:       t.Description,
		RejectionReason:   t.RejectionReason,
		Notes:             notes,
		PaidAt:            t.PaidAt,
		CancelledAt:       t.CancelledAt,
		RejectedAt:        t.RejectedAt,
		RefundedAt:        t.RefundedAt,
		Version:           t.Version,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}
