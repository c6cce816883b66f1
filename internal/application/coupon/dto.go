package coupon

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/subgov/backend/internal/domain/coupon"
	"github.com/subgov/backend/internal/domain/shared"
)

// CreateCouponInput contains input for creating a coupon
type CreateCouponInput struct {
	Code              string
	Description       string
	DiscountType      coupon.DiscountType
	DiscountValue     decimal.Decimal
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	MaxRedemptions    int
	AllowRepeat       bool
	MaxPerTenant      int
	MinPurchaseAmount int64
	ApplicableTiers   []string
}

// ValidateInput contains input for a dry-run coupon check
type ValidateInput struct {
	Code     string
	TenantID uuid.UUID
	Amount   int64
	TierCode string
}

// ValidationResult is the answer of the resolver. Reason is the machine code of
// the first failed rule, Message its human-readable form.
type ValidationResult struct {
	Valid          bool   `json:"valid"`
	Code           string `json:"code"`
	Reason         string `json:"reason,omitempty"`
	Message        string `json:"message,omitempty"`
	Amount         int64  `json:"amount"`
	DiscountAmount int64  `json:"discount_amount"`
	FinalAmount    int64  `json:"final_amount"`
}

// CouponDTO represents coupon data transfer object
type CouponDTO struct {
	ID                uuid.UUID  `json:"id"`
	Code              string     `json:"code"`
	Description       string     `json:"description,omitempty"`
	DiscountType      string     `json:"discount_type"`
	DiscountValue     string     `json:"discount_value"`
	ValidFrom         *time.Time `json:"valid_from,omitempty"`
	ValidUntil        *time.Time `json:"valid_until,omitempty"`
	MaxRedemptions    int        `json:"max_redemptions"`
	RedemptionCount   int        `json:"redemption_count"`
	AllowRepeat       bool       `json:"allow_repeat"`
	MaxPerTenant      int        `json:"max_per_tenant"`
	MinPurchaseAmount int64      `json:"min_purchase_amount"`
	ApplicableTiers   []string   `json:"applicable_tiers"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// RedemptionDTO represents one redemption
type RedemptionDTO struct {
	ID             uuid.UUID  `json:"id"`
	CouponID       uuid.UUID  `json:"coupon_id"`
	CouponCode     string     `json:"coupon_code"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	TransactionID  *uuid.UUID `json:"transaction_id,omitempty"`
	Seq            int        `json:"seq"`
	OriginalAmount int64      `json:"original_amount"`
	DiscountAmount int64      `json:"discount_amount"`
	RedeemedAt     time.Time  `json:"redeemed_at"`
}

// CouponListResult is a page of coupons
type CouponListResult = shared.Paginated[CouponDTO]

// RedemptionListResult is a page of redemptions
type RedemptionListResult = shared.Paginated[RedemptionDTO]

func toCouponDTO(c *coupon.Coupon) CouponDTO {
	tiers := c.ApplicableTiers
	if tiers == nil {
		tiers = []string{}
	}
	return CouponDTO{
		ID:                c.ID,
		Code:              c.Code,
		Description:       c.Description,
		DiscountType:      string(c.DiscountType),
		DiscountValue:     c.DiscountValue.String(),
		ValidFrom:         c.ValidFrom,
		ValidUntil:        c.ValidUntil,
		MaxRedemptions:    c.MaxRedemptions,
		RedemptionCount:   c.RedemptionCount,
		AllowRepeat:       c.AllowRepeat,
		MaxPerTenant:      c.MaxPerTenant,
		MinPurchaseAmount: c.MinPurchaseAmount,
		ApplicableTiers:   tiers,
		IsActive:          c.IsActive,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

// ToRedemptionDTO converts a redemption
func ToRedemptionDTO(r *coupon.Redemption) RedemptionDTO {
	return RedemptionDTO{
		ID:             r.ID,
		CouponID:       r.CouponID,
		CouponCode:     r.CouponCode,
		TenantID:       r.TenantID,
		TransactionID:  r.TransactionID,
		Seq:            r.Seq,
		OriginalAmount: r.OriginalAmount,
		DiscountAmount: r.DiscountAmount,
		RedeemedAt:     r.RedeemedAt,
	}
}
