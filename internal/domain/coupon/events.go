package coupon

import (
	"github.com/subgov/backend/internal/domain/shared"
)

// Event type constants
const (
	EventTypeCouponCreated  = "CouponCreated"
	EventTypeCouponRedeemed = "CouponRedeemed"
)

// CouponCreatedEvent is published when an admin creates a coupon
type CouponCreatedEvent struct {
	shared.BaseDomainEvent
	Code          string       `json:"code"`
	DiscountType  DiscountType `json:"discount_type"`
	DiscountValue string       `json:"discount_value"`
}

// NewCouponCreatedEvent creates a new CouponCreatedEvent
func NewCouponCreatedEvent(c *Coupon) *CouponCreatedEvent {
	return &CouponCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCouponCreated, AggregateTypeCoupon, c.ID, shared.SystemTenantID),
		Code:            c.Code,
		DiscountType:    c.DiscountType,
		DiscountValue:   c.DiscountValue.String(),
	}
}

// CouponRedeemedEvent is published when a redemption is recorded
type CouponRedeemedEvent struct {
	shared.BaseDomainEvent
	Code           string `json:"code"`
	RedemptionID   string `json:"redemption_id"`
	TransactionID  string `json:"transaction_id,omitempty"`
	DiscountAmount int64  `json:"discount_amount"`
}

// NewCouponRedeemedEvent creates a new CouponRedeemedEvent
func NewCouponRedeemedEvent(r *Redemption) *CouponRedeemedEvent {
	e := &CouponRedeemedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCouponRedeemed, AggregateTypeCoupon, r.CouponID, r.TenantID),
		Code:            r.CouponCode,
		RedemptionID:    r.ID.String(),
		DiscountAmount:  r.DiscountAmount,
	}
	if r.TransactionID != nil {
		e.TransactionID = r.TransactionID.String()
	}
	return e
}
