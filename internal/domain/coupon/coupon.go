package coupon

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/subgov/backend/internal/domain/shared"
)

// AggregateTypeCoupon is the aggregate type of coupons
const AggregateTypeCoupon = "Coupon"

// Reason codes returned when a coupon fails validation. They are checked in
// declaration order and the first failure wins.
const (
	ReasonNotFound        = "COUPON_NOT_FOUND"
	ReasonInactive        = "COUPON_INACTIVE"
	ReasonNotYetValid     = "COUPON_NOT_YET_VALID"
	ReasonExpired         = "COUPON_EXPIRED"
	ReasonExhausted       = "COUPON_EXHAUSTED"
	ReasonAlreadyRedeemed = "COUPON_ALREADY_REDEEMED"
	ReasonMinPurchase     = "COUPON_MIN_PURCHASE_NOT_MET"
	ReasonTierNotEligible = "COUPON_TIER_NOT_ELIGIBLE"
)

// Coupon is a discount code
type Coupon struct {
	shared.BaseAggregateRoot
	Code              string
	Description       string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	MaxRedemptions    int
	RedemptionCount   int
	AllowRepeat       bool
	MaxPerTenant      int
	MinPurchaseAmount int64
	ApplicableTiers   []string
	IsActive          bool
}

// NewCouponParams carries the fields of a new coupon
type NewCouponParams struct {
	Code              string
	Description       string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	MaxRedemptions    int
	AllowRepeat       bool
	MaxPerTenant      int
	MinPurchaseAmount int64
	ApplicableTiers   []string
}

// NormalizeCode upper-cases and trims a coupon code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewCoupon validates and builds an active coupon
func NewCoupon(p NewCouponParams, now time.Time) (*Coupon, error) {
	code := NormalizeCode(p.Code)
	if code == "" {
		return nil, shared.NewValidationError("INVALID_COUPON_CODE", "Coupon code cannot be empty")
	}
	if len(code) > 50 {
		return nil, shared.NewValidationError("INVALID_COUPON_CODE", "Coupon code cannot exceed 50 characters")
	}
	if err := ValidateDiscount(p.DiscountType, p.DiscountValue); err != nil {
		return nil, err
	}
	if p.ValidFrom != nil && p.ValidUntil != nil && !p.ValidUntil.After(*p.ValidFrom) {
		return nil, shared.NewValidationError("INVALID_VALIDITY_WINDOW", "valid_until must be after valid_from")
	}
	if p.MaxRedemptions < 0 || p.MaxPerTenant < 0 {
		return nil, shared.NewValidationError("INVALID_REDEMPTION_LIMIT", "Redemption limits cannot be negative")
	}
	if p.MinPurchaseAmount < 0 {
		return nil, shared.NewValidationError("INVALID_MIN_PURCHASE", "Minimum purchase cannot be negative")
	}
	tiers := make([]string, 0, len(p.ApplicableTiers))
	for _, t := range p.ApplicableTiers {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" && !slices.Contains(tiers, t) {
			tiers = append(tiers, t)
		}
	}
	maxPerTenant := p.MaxPerTenant
	if !p.AllowRepeat {
		maxPerTenant = 1
	}

	c := &Coupon{
		BaseAggregateRoot: shared.NewBaseAggregateRootAt(now),
		Code:              code,
		Description:       p.Description,
		DiscountType:      p.DiscountType,
		DiscountValue:     p.DiscountValue,
		ValidFrom:         p.ValidFrom,
		ValidUntil:        p.ValidUntil,
		MaxRedemptions:    p.MaxRedemptions,
		AllowRepeat:       p.AllowRepeat,
		MaxPerTenant:      maxPerTenant,
		MinPurchaseAmount: p.MinPurchaseAmount,
		ApplicableTiers:   tiers,
		IsActive:          true,
	}
	c.AddDomainEvent(NewCouponCreatedEvent(c))
	return c, nil
}

// Check runs the validation chain for one tenant. tenantRedemptions is how many
// times the tenant has already redeemed this coupon. tierCode may be empty when
// the purchase is not tied to a tier.
func (c *Coupon) Check(now time.Time, amount int64, tierCode string, tenantRedemptions int) error {
	if !c.IsActive {
		return shared.NewCouponInvalidError(ReasonInactive, "Coupon is not active")
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return shared.NewCouponInvalidError(ReasonNotYetValid, "Coupon is not valid yet")
	}
	if c.ValidUntil != nil && !now.Before(*c.ValidUntil) {
		return shared.NewCouponInvalidError(ReasonExpired, "Coupon has expired")
	}
	if c.MaxRedemptions > 0 && c.RedemptionCount >= c.MaxRedemptions {
		return shared.NewCouponInvalidError(ReasonExhausted, "Coupon redemption limit has been reached")
	}
	if tenantRedemptions > 0 && (!c.AllowRepeat || (c.MaxPerTenant > 0 && tenantRedemptions >= c.MaxPerTenant)) {
		return shared.ErrCouponAlreadyRedeemed
	}
	if amount < c.MinPurchaseAmount {
		return shared.NewCouponInvalidError(ReasonMinPurchase, "Amount is below the coupon's minimum purchase").
			WithDetail("min_purchase_amount", c.MinPurchaseAmount)
	}
	if tierCode != "" && len(c.ApplicableTiers) > 0 && !slices.Contains(c.ApplicableTiers, tierCode) {
		return shared.NewCouponInvalidError(ReasonTierNotEligible, "Coupon does not apply to tier "+tierCode)
	}
	return nil
}

// DiscountFor returns the discount this coupon grants on amount
func (c *Coupon) DiscountFor(amount int64) int64 {
	return ComputeDiscount(c.DiscountType, c.DiscountValue, amount)
}

// NextSeq returns the redemption sequence number for a tenant's next use. Coupons
// without repeats always use 1 so the unique index rejects a second redemption.
func (c *Coupon) NextSeq(tenantRedemptions int) int {
	if !c.AllowRepeat {
		return 1
	}
	return tenantRedemptions + 1
}

// Deactivate stops the coupon from validating
func (c *Coupon) Deactivate(now time.Time) {
	if !c.IsActive {
		return
	}
	c.IsActive = false
	c.Touch(now)
	c.IncrementVersion()
}

// Activate re-enables the coupon
func (c *Coupon) Activate(now time.Time) {
	if c.IsActive {
		return
	}
	c.IsActive = true
	c.Touch(now)
	c.IncrementVersion()
}

// UpdateLimits edits the validity window and redemption limits
func (c *Coupon) UpdateLimits(validFrom, validUntil *time.Time, maxRedemptions int, now time.Time) error {
	if validFrom != nil && validUntil != nil && !validUntil.After(*validFrom) {
		return shared.NewValidationError("INVALID_VALIDITY_WINDOW", "valid_until must be after valid_from")
	}
	if maxRedemptions < 0 {
		return shared.NewValidationError("INVALID_REDEMPTION_LIMIT", "Redemption limits cannot be negative")
	}
	c.ValidFrom = validFrom
	c.ValidUntil = validUntil
	c.MaxRedemptions = maxRedemptions
	c.Touch(now)
	c.IncrementVersion()
	return nil
}
