package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTiers(t *testing.T) {
	tiers := DefaultTiers()
	require.Len(t, tiers, 4)

	for i, tier := range tiers {
		require.NotNil(t, tier, "tier %d failed validation", i)
		assert.Equal(t, i, tier.SortOrder)
		assert.Equal(t, "USD", tier.Currency)
		for _, m := range AllMetricTypes() {
			_, ok := tier.Limits[m]
			assert.True(t, ok, "%s missing limit for %s", tier.Code, m)
		}
	}
	assert.True(t, tiers[0].IsFree())
	assert.Equal(t, UnlimitedValue, tiers[3].LimitFor(MetricAPICalls))
	assert.Less(t, tiers[1].Compare(tiers[2]), 0)
}

func TestTier_Price(t *testing.T) {
	tier, err := NewTier("Pro ", "Pro", 1000, 10000, "usd", nil, 5)
	require.NoError(t, err)
	assert.Equal(t, "pro", tier.Code)
	assert.Equal(t, "USD", tier.Currency)
	assert.Equal(t, int64(1000), tier.Price(BillingPeriodMonthly))
	assert.Equal(t, int64(10000), tier.Price(BillingPeriodYearly))
	assert.Equal(t, int64(833), tier.MonthlyEquivalent(BillingPeriodYearly))
	assert.Equal(t, UnlimitedValue, tier.LimitFor(MetricBranches))
}

func TestNewTier_Validation(t *testing.T) {
	_, err := NewTier("", "x", 0, 0, "USD", nil, 0)
	assert.Error(t, err)
	_, err = NewTier("x", "x", -1, 0, "USD", nil, 0)
	assert.Error(t, err)
	_, err = NewTier("x", "x", 0, 0, "US", nil, 0)
	assert.Error(t, err)
	_, err = NewTier("x", "x", 0, 0, "USD", map[MetricType]int64{"bogus": 1}, 0)
	assert.Error(t, err)
}

func TestParseEnums(t *testing.T) {
	m, err := ParseMetricType("storage_bytes")
	require.NoError(t, err)
	assert.Equal(t, UsageUnitBytes, m.Unit())
	assert.Equal(t, "1.00 GB", m.Unit().FormatValue(gib))
	assert.Equal(t, "Unlimited", m.Unit().FormatValue(UnlimitedValue))

	_, err = ParseMetricType("orders")
	assert.Error(t, err)

	p, err := ParseBillingPeriod("yearly")
	require.NoError(t, err)
	assert.Equal(t, 12, p.Months())
	_, err = ParseBillingPeriod("weekly")
	assert.Error(t, err)
}
