package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/ledger"
	"gorm.io/datatypes"
)

// BillingTransactionModel is the persistence model for ledger entries
type BillingTransactionModel struct {
	TenantAggregateModel
	TransactionNumber string         `gorm:"type:varchar(50);not null;uniqueIndex"`
	Type              string         `gorm:"type:varchar(20);not null;index"`
	Status            string         `gorm:"type:varchar(20);not null;index"`
	Source            string         `gorm:"type:varchar(20);not null"`
	Amount            int64          `gorm:"not null"`
	Currency          string         `gorm:"type:varchar(3);not null"`
	CouponCode        string         `gorm:"type:varchar(50)"`
	CouponDiscount    int64          `gorm:"not null;default:0"`
	ManualDiscount    int64          `gorm:"not null;default:0"`
	DiscountAmount    int64          `gorm:"not null;default:0"`
	BonusDays         int            `gorm:"not null;default:0"`
	RequiresReview    bool           `gorm:"not null;default:false"`
	TargetTierCode    string         `gorm:"type:varchar(50)"`
	BillingPeriod     string         `gorm:"type:varchar(20)"`
	UpgradeRequestID  *uuid.UUID     `gorm:"type:uuid;index"`
	Description       string         `gorm:"type:text"`
	RejectionReason   string         `gorm:"type:text"`
	Notes             datatypes.JSON `gorm:"type:jsonb"`
	CreatedBy         *uuid.UUID     `gorm:"type:uuid"`
	ProcessedBy       *uuid.UUID     `gorm:"type:uuid"`
	PaidAt            *time.Time     `gorm:"index"`
	CancelledAt       *time.Time
	RejectedAt        *time.Time
	RefundedAt        *time.Time `gorm:"index"`
}

// TableName returns the table name for GORM
func (BillingTransactionModel) TableName() string {
	return "billing_transactions"
}

// ToDomain converts the persistence model to a domain BillingTransaction
func (m *BillingTransactionModel) ToDomain() *ledger.BillingTransaction {
	return &ledger.BillingTransaction{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		TransactionNumber:   m.TransactionNumber,
		Type:                ledger.TransactionType(m.Type),
		Status:              ledger.TransactionStatus(m.Status),
		Source:              ledger.Source(m.Source),
		Amount:              m.Amount,
		Currency:            m.Currency,
		CouponCode:          m.CouponCode,
		CouponDiscount:      m.CouponDiscount,
		ManualDiscount:      m.ManualDiscount,
		DiscountAmount:      m.DiscountAmount,
		BonusDays:           m.BonusDays,
		RequiresReview:      m.RequiresReview,
		TargetTierCode:      m.TargetTierCode,
		BillingPeriod:       billing.BillingPeriod(m.BillingPeriod),
		UpgradeRequestID:    m.UpgradeRequestID,
		Description:         m.Description,
		RejectionReason:     m.RejectionReason,
		Notes:               fromJSON[[]ledger.Note](m.Notes),
		CreatedBy:           m.CreatedBy,
		ProcessedBy:         m.ProcessedBy,
		PaidAt:              m.PaidAt,
		CancelledAt:         m.CancelledAt,
		RejectedAt:          m.RejectedAt,
		RefundedAt:          m.RefundedAt,
	}
}

// BillingTransactionModelFromDomain creates a persistence model from a domain BillingTransaction
func BillingTransactionModelFromDomain(t *ledger.BillingTransaction) *BillingTransactionModel {
	notes := t.Notes
	if notes == nil {
		notes = []ledger.Note{}
	}
	m := &BillingTransactionModel{
		TransactionNumber: t.TransactionNumber,
		Type:              string(t.Type),
		Status:            string(t.Status),
		Source:            string(t.Source),
		Amount:            t.Amount,
		Currency:          t.Currency,
		CouponCode:        t.CouponCode,
		CouponDiscount:    t.CouponDiscount,
		ManualDiscount:    t.ManualDiscount,
		DiscountAmount:    t.DiscountAmount,
		BonusDays:         t.BonusDays,
		RequiresReview:    t.RequiresReview,
		TargetTierCode:    t.TargetTierCode,
		BillingPeriod:     string(t.BillingPeriod),
		UpgradeRequestID:  t.UpgradeRequestID,
		Description:       t.Description,
		RejectionReason:   t.RejectionReason,
		Notes:             toJSON(notes),
		CreatedBy:         t.CreatedBy,
		ProcessedBy:       t.ProcessedBy,
		PaidAt:            t.PaidAt,
		CancelledAt:       t.CancelledAt,
		RejectedAt:        t.RejectedAt,
		RefundedAt:        t.RefundedAt,
	}
	m.FromDomainTenantAggregateRoot(t.TenantAggregateRoot)
	return m
}
