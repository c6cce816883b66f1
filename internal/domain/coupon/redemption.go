package coupon

import (
	"time"

	"github.com/google/uuid"
)

// Redemption records one use of a coupon by a tenant
type Redemption struct {
	ID             uuid.UUID
	CouponID       uuid.UUID
	CouponCode     string
	TenantID       uuid.UUID
	TransactionID  *uuid.UUID
	Seq            int
	OriginalAmount int64
	DiscountAmount int64
	RedeemedAt     time.Time
}

// NewRedemption builds the redemption row for the tenant's next use of c
func NewRedemption(c *Coupon, tenantID uuid.UUID, transactionID *uuid.UUID, tenantRedemptions int, amount int64, now time.Time) *Redemption {
	return &Redemption{
		ID:             uuid.New(),
		CouponID:       c.ID,
		CouponCode:     c.Code,
		TenantID:       tenantID,
		TransactionID:  transactionID,
		Seq:            c.NextSeq(tenantRedemptions),
		OriginalAmount: amount,
		DiscountAmount: c.DiscountFor(amount),
		RedeemedAt:     now,
	}
}
