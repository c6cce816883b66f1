package coupon

import (
	"github.com/shopspring/decimal"
	"github.com/subgov/backend/internal/domain/shared"
)

// DiscountType selects how a discount value is interpreted
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// AllDiscountTypes returns every discount type
func AllDiscountTypes() []DiscountType {
	return []DiscountType{DiscountTypePercentage, DiscountTypeFixed}
}

// IsValid returns true for known discount types
func (t DiscountType) IsValid() bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixed
}

var hundred = decimal.NewFromInt(100)

// ValidateDiscount checks a value against its type. Percentages lie in (0, 100],
// fixed values are positive whole minor units.
func ValidateDiscount(t DiscountType, value decimal.Decimal) error {
	if !t.IsValid() {
		return shared.NewValidationError("INVALID_DISCOUNT_TYPE", "Discount type must be percentage or fixed")
	}
	if !value.IsPositive() {
		return shared.NewValidationError("INVALID_DISCOUNT_VALUE", "Discount value must be positive")
	}
	switch t {
	case DiscountTypePercentage:
		if value.GreaterThan(hundred) {
			return shared.NewValidationError("INVALID_DISCOUNT_VALUE", "Percentage discount cannot exceed 100")
		}
	case DiscountTypeFixed:
		if !value.Equal(value.Truncate(0)) {
			return shared.NewValidationError("INVALID_DISCOUNT_VALUE", "Fixed discount must be a whole amount in minor units")
		}
	}
	return nil
}

// ComputeDiscount returns the discount for amount. Percentages round down to the
// smallest currency unit and fixed values never exceed amount.
func ComputeDiscount(t DiscountType, value decimal.Decimal, amount int64) int64 {
	if amount <= 0 || !value.IsPositive() {
		return 0
	}
	var discount int64
	switch t {
	case DiscountTypePercentage:
		discount = decimal.NewFromInt(amount).Mul(value).Div(hundred).Floor().IntPart()
	case DiscountTypeFixed:
		discount = value.Floor().IntPart()
	}
	return min(max(discount, 0), amount)
}
