package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/subgov/backend/internal/domain/coupon"
	"gorm.io/datatypes"
)

// CouponModel is the persistence model for discount coupons
type CouponModel struct {
	AggregateModel
	Code              string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	Description       string          `gorm:"type:text"`
	DiscountType      string          `gorm:"type:varchar(20);not null"`
	DiscountValue     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	MaxRedemptions    int            `gorm:"not null;default:0"`
	RedemptionCount   int            `gorm:"not null;default:0"`
	AllowRepeat       bool           `gorm:"not null;default:false"`
	MaxPerTenant      int            `gorm:"not null"`
	MinPurchaseAmount int64          `gorm:"not null;default:0"`
	ApplicableTiers   datatypes.JSON `gorm:"type:jsonb"`
	IsActive          bool           `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (CouponModel) TableName() string {
	return "coupons"
}

// ToDomain converts the persistence model to a domain Coupon
func (m *CouponModel) ToDomain() *coupon.Coupon {
	return &coupon.Coupon{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Code:              m.Code,
		Description:       m.Description,
		DiscountType:      coupon.DiscountType(m.DiscountType),
		DiscountValue:     m.DiscountValue,
		ValidFrom:         m.ValidFrom,
		ValidUntil:        m.ValidUntil,
		MaxRedemptions:    m.MaxRedemptions,
		RedemptionCount:   m.RedemptionCount,
		AllowRepeat:       m.AllowRepeat,
		MaxPerTenant:      m.MaxPerTenant,
		MinPurchaseAmount: m.MinPurchaseAmount,
		ApplicableTiers:   fromJSON[[]string](m.ApplicableTiers),
		IsActive:          m.IsActive,
	}
}

// CouponModelFromDomain creates a persistence model from a domain Coupon
func CouponModelFromDomain(c *coupon.Coupon) *CouponModel {
	tiers := c.ApplicableTiers
	if tiers == nil {
		tiers = []string{}
	}
	m := &CouponModel{
		Code:              c.Code,
		Description:       c.Description,
		DiscountType:      string(c.DiscountType),
		DiscountValue:     c.DiscountValue,
		ValidFrom:         c.ValidFrom,
		ValidUntil:        c.ValidUntil,
		MaxRedemptions:    c.MaxRedemptions,
		RedemptionCount:   c.RedemptionCount,
		AllowRepeat:       c.AllowRepeat,
		MaxPerTenant:      c.MaxPerTenant,
		MinPurchaseAmount: c.MinPurchaseAmount,
		ApplicableTiers:   toJSON(tiers),
		IsActive:          c.IsActive,
	}
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	return m
}

// CouponRedemptionModel records one use of a coupon. The unique index on
// (coupon_id, tenant_id, seq) decides concurrent redemptions.
type CouponRedemptionModel struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CouponID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_redemptions_seq,priority:1"`
	TenantID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_redemptions_seq,priority:2"`
	Seq            int        `gorm:"not null;uniqueIndex:idx_coupon_redemptions_seq,priority:3"`
	CouponCode     string     `gorm:"type:varchar(50);not null"`
	TransactionID  *uuid.UUID `gorm:"type:uuid;index"`
	OriginalAmount int64      `gorm:"not null"`
	DiscountAmount int64      `gorm:"not null"`
	RedeemedAt     time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CouponRedemptionModel) TableName() string {
	return "coupon_redemptions"
}

// ToDomain converts the persistence model to a domain Redemption
func (m *CouponRedemptionModel) ToDomain() *coupon.Redemption {
	return &coupon.Redemption{
		ID:             m.ID,
		CouponID:       m.CouponID,
		CouponCode:     m.CouponCode,
		TenantID:       m.TenantID,
		TransactionID:  m.TransactionID,
		Seq:            m.Seq,
		OriginalAmount: m.OriginalAmount,
		DiscountAmount: m.DiscountAmount,
		RedeemedAt:     m.RedeemedAt,
	}
}

// CouponRedemptionModelFromDomain creates a persistence model from a domain Redemption
func CouponRedemptionModelFromDomain(r *coupon.Redemption) *CouponRedemptionModel {
	return &CouponRedemptionModel{
		ID:             r.ID,
		CouponID:       r.CouponID,
		TenantID:       r.TenantID,
		Seq:            r.Seq,
		CouponCode:     r.CouponCode,
		TransactionID:  r.TransactionID,
		OriginalAmount: r.OriginalAmount,
		DiscountAmount: r.DiscountAmount,
		RedeemedAt:     r.RedeemedAt,
	}
}
