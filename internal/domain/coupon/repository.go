package coupon

import (
	"context"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
)

// CouponFilter narrows coupon listings
type CouponFilter struct {
	shared.Filter
	IsActive *bool
	Search   string
}

// CouponRepository persists coupons
type CouponRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Coupon, error)
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	FindAll(ctx context.Context, filter CouponFilter) ([]*Coupon, int64, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	// IncrementRedemptions bumps redemption_count with a conditional update and
	// returns false when the global limit was already reached
	IncrementRedemptions(ctx context.Context, id uuid.UUID) (bool, error)
}

// RedemptionRepository persists coupon redemptions
type RedemptionRepository interface {
	CountByTenant(ctx context.Context, couponID, tenantID uuid.UUID) (int, error)
	// Create inserts a redemption. A unique violation on (coupon, tenant, seq)
	// fails with shared.ErrCouponAlreadyRedeemed.
	Create(ctx context.Context, r *Redemption) error
	FindByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*Redemption, error)
	FindByCoupon(ctx context.Context, couponID uuid.UUID, filter shared.Filter) ([]*Redemption, int64, error)
}
