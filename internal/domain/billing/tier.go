package billing

import (
	"context"
	"strings"
	"time"

	"github.com/subgov/backend/internal/domain/shared"
)

// Tier codes shipped with the default catalogue
const (
	TierFree       = "free"
	TierBasic      = "basic"
	TierPremium    = "premium"
	TierEnterprise = "enterprise"
)

const gib = int64(1) << 30

// Tier is a named subscription plan. Prices are in the currency's smallest unit.
type Tier struct {
	Code         string
	Name         string
	Description  string
	MonthlyPrice int64
	YearlyPrice  int64
	Currency     string
	Limits       map[MetricType]int64
	SortOrder    int
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewTier validates and builds a tier
func NewTier(code, name string, monthly, yearly int64, currency string, limits map[MetricType]int64, sortOrder int) (*Tier, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil, shared.NewValidationError("INVALID_TIER_CODE", "Tier code cannot be empty")
	}
	if name == "" {
		return nil, shared.NewValidationError("INVALID_TIER_NAME", "Tier name cannot be empty")
	}
	if monthly < 0 || yearly < 0 {
		return nil, shared.NewValidationError("INVALID_TIER_PRICE", "Tier prices cannot be negative")
	}
	if len(currency) != 3 {
		return nil, shared.NewValidationError("INVALID_CURRENCY", "Currency must be a 3-letter ISO code")
	}
	t := &Tier{
		Code:         code,
		Name:         name,
		MonthlyPrice: monthly,
		YearlyPrice:  yearly,
		Currency:     strings.ToUpper(currency),
		Limits:       make(map[MetricType]int64, len(limits)),
		SortOrder:    sortOrder,
		IsActive:     true,
	}
	for metric, limit := range limits {
		if err := t.SetLimit(metric, limit); err != nil {
			return nil, err
		}
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	return t, nil
}

// SetLimit sets the default limit for one metric
func (t *Tier) SetLimit(metric MetricType, limit int64) error {
	if !metric.IsValid() {
		return shared.NewValidationError("INVALID_METRIC_TYPE", "Unknown metric type: "+string(metric))
	}
	if err := ValidateLimit(limit); err != nil {
		return err
	}
	if t.Limits == nil {
		t.Limits = make(map[MetricType]int64)
	}
	t.Limits[metric] = limit
	return nil
}

// LimitFor returns the tier's limit for metric. Metrics the tier does not
// mention are unlimited.
func (t *Tier) LimitFor(metric MetricType) int64 {
	if limit, ok := t.Limits[metric]; ok {
		return limit
	}
	return UnlimitedValue
}

// Price returns the list price for one cycle of period
func (t *Tier) Price(period BillingPeriod) int64 {
	if period == BillingPeriodYearly {
		return t.YearlyPrice
	}
	return t.MonthlyPrice
}

// MonthlyEquivalent returns the per-month price for a cycle of period, rounded down
func (t *Tier) MonthlyEquivalent(period BillingPeriod) int64 {
	return t.Price(period) / int64(period.Months())
}

// IsFree is true when the tier costs nothing in either period
func (t *Tier) IsFree() bool {
	return t.MonthlyPrice == 0 && t.YearlyPrice == 0
}

// Compare orders two tiers by catalogue position: negative when t ranks below other
func (t *Tier) Compare(other *Tier) int {
	return t.SortOrder - other.SortOrder
}

// DefaultTiers returns the catalogue seeded on a fresh install
func DefaultTiers() []*Tier {
	mk := func(code, name string, monthly, yearly int64, order int, api, storage, users, branches int64) *Tier {
		t, _ := NewTier(code, name, monthly, yearly, "USD", map[MetricType]int64{
			MetricAPICalls:     api,
			MetricStorageBytes: storage,
			MetricActiveUsers:  users,
			MetricBranches:     branches,
		}, order)
		return t
	}
	return []*Tier{
		mk(TierFree, "Free", 0, 0, 0, 10_000, 1*gib, 3, 1),
		mk(TierBasic, "Basic", 2_900, 29_000, 1, 100_000, 10*gib, 10, 3),
		mk(TierPremium, "Premium", 9_900, 99_000, 2, 1_000_000, 100*gib, 50, 10),
		mk(TierEnterprise, "Enterprise", 29_900, 299_000, 3, UnlimitedValue, UnlimitedValue, UnlimitedValue, UnlimitedValue),
	}
}

// TierRepository persists the tier catalogue
type TierRepository interface {
	FindByCode(ctx context.Context, code string) (*Tier, error)
	FindAll(ctx context.Context, includeInactive bool) ([]*Tier, error)
	Save(ctx context.Context, tier *Tier) error
}
