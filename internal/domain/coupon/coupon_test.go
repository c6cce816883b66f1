package coupon

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/domain/shared"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func save20(t *testing.T) *Coupon {
	t.Helper()
	c, err := NewCoupon(NewCouponParams{
		Code:           " save20 ",
		DiscountType:   DiscountTypePercentage,
		DiscountValue:  decimal.NewFromInt(20),
		MaxRedemptions: 100,
	}, now)
	require.NoError(t, err)
	return c
}

func reasonOf(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func TestComputeDiscount(t *testing.T) {
	tests := []struct {
		name   string
		typ    DiscountType
		value  decimal.Decimal
		amount int64
		want   int64
	}{
		{"twenty percent", DiscountTypePercentage, decimal.NewFromInt(20), 100000, 20000},
		{"rounds down", DiscountTypePercentage, decimal.NewFromInt(15), 999, 149},
		{"fractional percent", DiscountTypePercentage, decimal.RequireFromString("12.5"), 1001, 125},
		{"full percent", DiscountTypePercentage, decimal.NewFromInt(100), 2900, 2900},
		{"fixed below amount", DiscountTypeFixed, decimal.NewFromInt(500), 2900, 500},
		{"fixed clamps to amount", DiscountTypeFixed, decimal.NewFromInt(5000), 2900, 2900},
		{"zero amount", DiscountTypeFixed, decimal.NewFromInt(500), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeDiscount(tt.typ, tt.value, tt.amount))
		})
	}
}

func TestValidateDiscount(t *testing.T) {
	assert.NoError(t, ValidateDiscount(DiscountTypePercentage, decimal.NewFromInt(100)))
	assert.Error(t, ValidateDiscount(DiscountTypePercentage, decimal.NewFromInt(101)))
	assert.Error(t, ValidateDiscount(DiscountTypeFixed, decimal.RequireFromString("1.5")))
	assert.Error(t, ValidateDiscount(DiscountTypeFixed, decimal.Zero))
	assert.Error(t, ValidateDiscount("bogo", decimal.NewFromInt(1)))
}

func TestNewCoupon(t *testing.T) {
	c := save20(t)
	assert.Equal(t, "SAVE20", c.Code)
	assert.True(t, c.IsActive)
	assert.Equal(t, 1, c.MaxPerTenant)
	require.Len(t, c.GetDomainEvents(), 1)

	until := now.Add(-time.Hour)
	_, err := NewCoupon(NewCouponParams{
		Code: "X", DiscountType: DiscountTypeFixed, DiscountValue: decimal.NewFromInt(1),
		ValidFrom: &now, ValidUntil: &until,
	}, now)
	assert.Equal(t, "INVALID_VALIDITY_WINDOW", reasonOf(err))
}

func TestCheckOrder(t *testing.T) {
	tenantAmount := int64(10000)

	t.Run("valid coupon", func(t *testing.T) {
		c := save20(t)
		require.NoError(t, c.Check(now, tenantAmount, "premium", 0))
		assert.Equal(t, int64(2000), c.DiscountFor(tenantAmount))
	})

	t.Run("inactive wins over everything", func(t *testing.T) {
		c := save20(t)
		c.Deactivate(now)
		c.RedemptionCount = 100
		err := c.Check(now, 0, "", 1)
		assert.Equal(t, ReasonInactive, reasonOf(err))
		assert.True(t, shared.IsKind(err, shared.KindCouponInvalid))
	})

	t.Run("window checked before limits", func(t *testing.T) {
		c := save20(t)
		from := now.Add(time.Hour)
		c.ValidFrom = &from
		c.RedemptionCount = 100
		assert.Equal(t, ReasonNotYetValid, reasonOf(c.Check(now, tenantAmount, "", 1)))

		c.ValidFrom = nil
		c.ValidUntil = &now
		assert.Equal(t, ReasonExpired, reasonOf(c.Check(now, tenantAmount, "", 1)))
	})

	t.Run("global limit before tenant reuse", func(t *testing.T) {
		c := save20(t)
		c.RedemptionCount = 100
		assert.Equal(t, ReasonExhausted, reasonOf(c.Check(now, tenantAmount, "", 1)))
	})

	t.Run("tenant reuse", func(t *testing.T) {
		c := save20(t)
		err := c.Check(now, 1, "", 1)
		assert.ErrorIs(t, err, shared.ErrCouponAlreadyRedeemed)
		assert.True(t, shared.IsKind(err, shared.KindCouponAlreadyRedeemed))
	})

	t.Run("repeat coupons respect per-tenant cap", func(t *testing.T) {
		c, err := NewCoupon(NewCouponParams{
			Code: "LOYAL", DiscountType: DiscountTypeFixed, DiscountValue: decimal.NewFromInt(100),
			AllowRepeat: true, MaxPerTenant: 2,
		}, now)
		require.NoError(t, err)
		assert.NoError(t, c.Check(now, 500, "", 1))
		assert.Equal(t, 2, c.NextSeq(1))
		assert.ErrorIs(t, c.Check(now, 500, "", 2), shared.ErrCouponAlreadyRedeemed)
	})

	t.Run("minimum purchase then tier", func(t *testing.T) {
		c := save20(t)
		c.MinPurchaseAmount = 5000
		c.ApplicableTiers = []string{"premium"}
		assert.Equal(t, ReasonMinPurchase, reasonOf(c.Check(now, 4999, "basic", 0)))
		assert.Equal(t, ReasonTierNotEligible, reasonOf(c.Check(now, 5000, "basic", 0)))
		assert.NoError(t, c.Check(now, 5000, "premium", 0))
		assert.NoError(t, c.Check(now, 5000, "", 0))
	})
}

func TestNewRedemption(t *testing.T) {
	c := save20(t)
	txID := uuid.New()
	tenantID := uuid.New()

	r := NewRedemption(c, tenantID, &txID, 0, 100000, now)
	assert.Equal(t, 1, r.Seq)
	assert.Equal(t, int64(20000), r.DiscountAmount)
	assert.Equal(t, "SAVE20", r.CouponCode)

	// non-repeatable coupons reuse seq 1 so the unique index catches the second insert
	again := NewRedemption(c, tenantID, &txID, 1, 100000, now)
	assert.Equal(t, 1, again.Seq)
}
