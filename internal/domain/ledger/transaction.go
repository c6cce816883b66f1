package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/shared"
)

// TransactionType classifies why money moved
type TransactionType string

const (
	TypeSubscription     TransactionType = "subscription"
	TypeUpgrade          TransactionType = "upgrade"
	TypeDowngrade        TransactionType = "downgrade"
	TypeRenewal          TransactionType = "renewal"
	TypeCreditAdjustment TransactionType = "credit_adjustment"
	TypeExtension        TransactionType = "extension"
	TypePromo            TransactionType = "promo"
	TypeRefund           TransactionType = "refund"
	TypeManual           TransactionType = "manual"
)

// AllTransactionTypes returns every transaction type
func AllTransactionTypes() []TransactionType {
	return []TransactionType{
		TypeSubscription, TypeUpgrade, TypeDowngrade, TypeRenewal, TypeCreditAdjustment,
		TypeExtension, TypePromo, TypeRefund, TypeManual,
	}
}

// IsValid returns true for known types
func (t TransactionType) IsValid() bool {
	for _, v := range AllTransactionTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// ChangesTier is true for types whose approval moves the tenant to TargetTierCode
func (t TransactionType) ChangesTier() bool {
	return t == TypeSubscription || t == TypeUpgrade || t == TypeDowngrade
}

// CountsAsRecurringRevenue is true for types that feed MRR
func (t TransactionType) CountsAsRecurringRevenue() bool {
	return t == TypeSubscription || t == TypeUpgrade || t == TypeDowngrade || t == TypeRenewal
}

// TransactionStatus is the ledger state of a transaction
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusPaid      TransactionStatus = "paid"
	StatusCancelled TransactionStatus = "cancelled"
	StatusRejected  TransactionStatus = "rejected"
	StatusRefunded  TransactionStatus = "refunded"
)

// AllTransactionStatuses returns every status
func AllTransactionStatuses() []TransactionStatus {
	return []TransactionStatus{StatusPending, StatusPaid, StatusCancelled, StatusRejected, StatusRefunded}
}

// IsValid returns true for known statuses
func (s TransactionStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled, StatusRejected, StatusRefunded:
		return true
	}
	return false
}

// IsTerminal is true for every status except pending
func (s TransactionStatus) IsTerminal() bool {
	return s != StatusPending
}

// Action is a state machine edge
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
	ActionRefund  Action = "refund"
)

var transitions = map[TransactionStatus]map[Action]TransactionStatus{
	StatusPending: {
		ActionApprove: StatusPaid,
		ActionReject:  StatusRejected,
		ActionCancel:  StatusCancelled,
	},
	StatusPaid: {
		ActionRefund: StatusRefunded,
	},
}

// Next returns the status reached from s by action
func (s TransactionStatus) Next(action Action) (TransactionStatus, bool) {
	next, ok := transitions[s][action]
	return next, ok
}

// Source records which flow created a transaction
type Source string

const (
	SourceUpgradeRequest Source = "upgrade_request"
	SourceManual         Source = "manual"
	SourceScheduled      Source = "scheduled"
)

// Note is an append-only audit entry
type Note struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// BillingTransaction is a ledger entry
type BillingTransaction struct {
	shared.TenantAggregateRoot
	TransactionNumber string
	Type              TransactionType
	Status            TransactionStatus
	Source            Source
	Amount            int64
	Currency          string
	CouponCode        string
	CouponDiscount    int64
	ManualDiscount    int64
	DiscountAmount    int64
	BonusDays         int
	RequiresReview    bool
	TargetTierCode    string
	BillingPeriod     billing.BillingPeriod
	UpgradeRequestID  *uuid.UUID
	Description       string
	RejectionReason   string
	Notes             []Note
	CreatedBy         *uuid.UUID
	ProcessedBy       *uuid.UUID
	PaidAt            *time.Time
	CancelledAt       *time.Time
	RejectedAt        *time.Time
	RefundedAt        *time.Time
}

// NewTransactionParams carries the fields needed to open a transaction
type NewTransactionParams struct {
	TenantID          uuid.UUID
	TransactionNumber string
	Type              TransactionType
	Source            Source
	Amount            int64
	Currency          string
	TargetTierCode    string
	BillingPeriod     billing.BillingPeriod
	UpgradeRequestID  *uuid.UUID
	RequiresReview    bool
	Description       string
	CreatedBy         *uuid.UUID
}

// NewTransaction opens a pending transaction
func NewTransaction(p NewTransactionParams, now time.Time) (*BillingTransaction, error) {
	if p.TenantID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if strings.TrimSpace(p.TransactionNumber) == "" {
		return nil, shared.NewValidationError("INVALID_TRANSACTION_NUMBER", "Transaction number cannot be empty")
	}
	if !p.Type.IsValid() {
		return nil, shared.NewValidationError("INVALID_TRANSACTION_TYPE", "Unknown transaction type: "+string(p.Type))
	}
	if p.Amount < 0 {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Amount cannot be negative")
	}
	if len(p.Currency) != 3 {
		return nil, shared.NewValidationError("INVALID_CURRENCY", "Currency must be a 3-letter ISO code")
	}
	if p.Type.ChangesTier() && p.TargetTierCode == "" {
		return nil, shared.NewValidationError("TARGET_TIER_REQUIRED", "A target tier is required for "+string(p.Type)+" transactions")
	}
	if p.TargetTierCode != "" && !p.BillingPeriod.IsValid() {
		return nil, shared.NewValidationError("INVALID_BILLING_PERIOD", "Billing period must be monthly or yearly")
	}
	if p.Source == "" {
		p.Source = SourceManual
	}

	tx := &BillingTransaction{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(p.TenantID, now),
		TransactionNumber:   p.TransactionNumber,
		Type:                p.Type,
		Status:              StatusPending,
		Source:              p.Source,
		Amount:              p.Amount,
		Currency:            strings.ToUpper(p.Currency),
		TargetTierCode:      p.TargetTierCode,
		BillingPeriod:       p.BillingPeriod,
		UpgradeRequestID:    p.UpgradeRequestID,
		RequiresReview:      p.RequiresReview,
		Description:         p.Description,
		CreatedBy:           p.CreatedBy,
		Notes:               make([]Note, 0),
	}
	tx.AddDomainEvent(NewTransactionCreatedEvent(tx))
	return tx, nil
}

// NetAmount is what the tenant owes after discounts
func (t *BillingTransaction) NetAmount() int64 {
	return t.Amount - t.DiscountAmount
}

// IsLinkedToUpgrade is true when the transaction belongs to an upgrade request
func (t *BillingTransaction) IsLinkedToUpgrade() bool {
	return t.UpgradeRequestID != nil
}

func (t *BillingTransaction) transition(action Action, by *uuid.UUID, now time.Time) (TransactionStatus, error) {
	next, ok := t.Status.Next(action)
	if !ok {
		return t.Status, shared.NewInvalidTransitionError("transaction "+t.TransactionNumber, string(t.Status), string(action))
	}
	old := t.Status
	t.Status = next
	t.ProcessedBy = by
	t.UpdatedAt = now
	t.IncrementVersion()
	return old, nil
}

// Approve marks the transaction paid
func (t *BillingTransaction) Approve(by *uuid.UUID, note string, now time.Time) error {
	old, err := t.transition(ActionApprove, by, now)
	if err != nil {
		return err
	}
	t.PaidAt = &now
	t.appendNote(by, note, now)
	t.AddDomainEvent(NewTransactionStatusChangedEvent(t, old, ""))
	return nil
}

// Reject closes the transaction unpaid. reason is required.
func (t *BillingTransaction) Reject(by *uuid.UUID, reason, note string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return shared.NewValidationError("REASON_REQUIRED", "A reason is required to reject a transaction")
	}
	old, err := t.transition(ActionReject, by, now)
	if err != nil {
		return err
	}
	t.RejectionReason = reason
	t.RejectedAt = &now
	t.appendNote(by, note, now)
	t.AddDomainEvent(NewTransactionStatusChangedEvent(t, old, reason))
	return nil
}

// Cancel withdraws a pending transaction
func (t *BillingTransaction) Cancel(by *uuid.UUID, reason string, now time.Time) error {
	old, err := t.transition(ActionCancel, by, now)
	if err != nil {
		return err
	}
	t.CancelledAt = &now
	t.appendNote(by, reason, now)
	t.AddDomainEvent(NewTransactionStatusChangedEvent(t, old, reason))
	return nil
}

// Refund reverses a paid transaction
func (t *BillingTransaction) Refund(by *uuid.UUID, reason string, now time.Time) error {
	old, err := t.transition(ActionRefund, by, now)
	if err != nil {
		return err
	}
	t.RefundedAt = &now
	t.appendNote(by, reason, now)
	t.AddDomainEvent(NewTransactionStatusChangedEvent(t, old, reason))
	return nil
}

func (t *BillingTransaction) requirePending(action string) error {
	if t.Status != StatusPending {
		return shared.NewInvalidTransitionError("transaction "+t.TransactionNumber, string(t.Status), action)
	}
	return nil
}

// CanApplyCoupon checks that a coupon may still be attached
func (t *BillingTransaction) CanApplyCoupon() error {
	if err := t.requirePending("apply coupon to"); err != nil {
		return err
	}
	if t.CouponCode != "" {
		return shared.NewCouponInvalidError("COUPON_ALREADY_APPLIED", "A coupon has already been applied to this transaction")
	}
	return nil
}

// ApplyCoupon records a resolved coupon discount
func (t *BillingTransaction) ApplyCoupon(code string, discount int64, now time.Time) error {
	if err := t.CanApplyCoupon(); err != nil {
		return err
	}
	if discount < 0 {
		return shared.NewValidationError("INVALID_DISCOUNT", "Discount cannot be negative")
	}
	t.CouponCode = strings.ToUpper(code)
	t.CouponDiscount = discount
	t.recomputeDiscount()
	t.UpdatedAt = now
	t.IncrementVersion()
	return nil
}

// ApplyManualDiscount sets the admin discount, replacing any earlier manual discount.
// The combined discount never exceeds the amount.
func (t *BillingTransaction) ApplyManualDiscount(discount int64, by *uuid.UUID, note string, now time.Time) error {
	if err := t.requirePending("discount"); err != nil {
		return err
	}
	if discount < 0 {
		return shared.NewValidationError("INVALID_DISCOUNT", "Discount cannot be negative")
	}
	t.ManualDiscount = discount
	t.recomputeDiscount()
	t.appendNote(by, note, now)
	t.UpdatedAt = now
	t.IncrementVersion()
	return nil
}

func (t *BillingTransaction) recomputeDiscount() {
	t.DiscountAmount = min(t.CouponDiscount+t.ManualDiscount, t.Amount)
}

// AddBonus grants extra subscription days, applied when the transaction is paid
func (t *BillingTransaction) AddBonus(days int, by *uuid.UUID, now time.Time) error {
	if days <= 0 {
		return shared.NewValidationError("INVALID_BONUS_DAYS", "Bonus days must be positive")
	}
	if err := t.requirePending("add bonus to"); err != nil {
		return err
	}
	t.BonusDays += days
	t.ProcessedBy = by
	t.UpdatedAt = now
	t.IncrementVersion()
	return nil
}

// AddNote appends an audit note. Legal in every status.
func (t *BillingTransaction) AddNote(by *uuid.UUID, text string, now time.Time) error {
	if strings.TrimSpace(text) == "" {
		return shared.NewValidationError("INVALID_NOTE", "Note text cannot be empty")
	}
	t.appendNote(by, text, now)
	t.UpdatedAt = now
	t.IncrementVersion()
	return nil
}

func (t *BillingTransaction) appendNote(by *uuid.UUID, text string, now time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	author := "system"
	if by != nil {
		author = by.String()
	}
	t.Notes = append(t.Notes, Note{Author: author, Text: text, At: now})
}
