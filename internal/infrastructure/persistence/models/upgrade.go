package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/upgrade"
)

// UpgradeRequestModel is the persistence model for upgrade requests
type UpgradeRequestModel struct {
	TenantAggregateModel
	RequestNumber      string `gorm:"type:varchar(50);not null;uniqueIndex"`
	CurrentTierCode    string `gorm:"type:varchar(50);not null"`
	TargetTierCode     string `gorm:"type:varchar(50);not null"`
	BillingPeriod      string `gorm:"type:varchar(20);not null"`
	Direction          string `gorm:"type:varchar(20);not null"`
	ListPrice          int64  `gorm:"not null"`
	ProrationCredit    int64  `gorm:"not null;default:0"`
	Amount             int64  `gorm:"not null"`
	Currency           string `gorm:"type:varchar(3);not null"`
	CouponCode         string `gorm:"type:varchar(50)"`
	Status             string `gorm:"type:varchar(20);not null;index"`
	PaymentProofFileID string `gorm:"type:varchar(500)"`
	ProofUploadedAt    *time.Time
	TransactionID      *uuid.UUID `gorm:"type:uuid;index"`
	RequestedBy        *uuid.UUID `gorm:"type:uuid"`
	ClaimedBy          *uuid.UUID `gorm:"type:uuid"`
	ReviewStartedAt    *time.Time
	ReviewedBy         *uuid.UUID `gorm:"type:uuid"`
	ReviewedAt         *time.Time
	RejectionReason    string    `gorm:"type:text"`
	ReviewNotes        string    `gorm:"type:text"`
	CancelReason       string    `gorm:"type:text"`
	ExpiresAt          time.Time `gorm:"not null;index"`
	ClosedAt           *time.Time
}

// TableName returns the table name for GORM
func (UpgradeRequestModel) TableName() string {
	return "upgrade_requests"
}

// ToDomain converts the persistence model to a domain UpgradeRequest
func (m *UpgradeRequestModel) ToDomain() *upgrade.UpgradeRequest {
	return &upgrade.UpgradeRequest{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		RequestNumber:       m.RequestNumber,
		CurrentTierCode:     m.CurrentTierCode,
		TargetTierCode:      m.TargetTierCode,
		BillingPeriod:       billing.BillingPeriod(m.BillingPeriod),
		Direction:           upgrade.Direction(m.Direction),
		ListPrice:           m.ListPrice,
		ProrationCredit:     m.ProrationCredit,
		Amount:              m.Amount,
		Currency:            m.Currency,
		CouponCode:          m.CouponCode,
		Status:              upgrade.RequestStatus(m.Status),
		PaymentProofFileID:  m.PaymentProofFileID,
		ProofUploadedAt:     m.ProofUploadedAt,
		TransactionID:       m.TransactionID,
		RequestedBy:         m.RequestedBy,
		ClaimedBy:           m.ClaimedBy,
		ReviewStartedAt:     m.ReviewStartedAt,
		ReviewedBy:          m.ReviewedBy,
		ReviewedAt:          m.ReviewedAt,
		RejectionReason:     m.RejectionReason,
		ReviewNotes:         m.ReviewNotes,
		CancelReason:        m.CancelReason,
		ExpiresAt:           m.ExpiresAt,
		ClosedAt:            m.ClosedAt,
	}
}

// UpgradeRequestModelFromDomain creates a persistence model from a domain UpgradeRequest
func UpgradeRequestModelFromDomain(r *upgrade.UpgradeRequest) *UpgradeRequestModel {
	m := &UpgradeRequestModel{
		RequestNumber:      r.RequestNumber,
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
		PaymentProofFileID: r.PaymentProofFileID,
		ProofUploadedAt:    r.ProofUploadedAt,
		TransactionID:      r.TransactionID,
		RequestedBy:        r.RequestedBy,
		ClaimedBy:          r.ClaimedBy,
		ReviewStartedAt:    r.ReviewStartedAt,
		ReviewedBy:         r.ReviewedBy,
		ReviewedAt:         r.ReviewedAt,
		RejectionReason:    r.RejectionReason,
		ReviewNotes:        r.ReviewNotes,
		CancelReason:       r.CancelReason,
		ExpiresAt:          r.ExpiresAt,
		ClosedAt:           r.ClosedAt,
	}
	m.FromDomainTenantAggregateRoot(r.TenantAggregateRoot)
	return m
}
