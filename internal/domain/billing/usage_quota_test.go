package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/domain/shared"
)

var fixedNow = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func newQuota(t *testing.T, metric MetricType, limit int64) *UsageQuota {
	t.Helper()
	q, err := NewUsageQuota(uuid.New(), metric, limit, fixedNow)
	require.NoError(t, err)
	return q
}

func TestNewUsageQuota(t *testing.T) {
	t.Run("aligns period to calendar month", func(t *testing.T) {
		q := newQuota(t, MetricAPICalls, 100)
		assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), q.PeriodStart)
		assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), q.PeriodEnd)
		assert.Zero(t, q.CurrentValue)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		_, err := NewUsageQuota(uuid.Nil, MetricAPICalls, 1, fixedNow)
		assert.True(t, shared.IsKind(err, shared.KindValidation))

		_, err = NewUsageQuota(uuid.New(), MetricType("orders"), 1, fixedNow)
		assert.Error(t, err)

		_, err = NewUsageQuota(uuid.New(), MetricBranches, -2, fixedNow)
		assert.Error(t, err)
	})
}

func TestUsageQuota_Increment(t *testing.T) {
	q := newQuota(t, MetricStorageBytes, 10)

	prev, err := q.Increment(9, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(0), prev)

	prev, err = q.Increment(2, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(9), prev)
	assert.Equal(t, int64(11), q.CurrentValue)

	_, err = q.Increment(0, fixedNow)
	assert.True(t, shared.IsKind(err, shared.KindValidation))
	_, err = q.Increment(-5, fixedNow)
	assert.Error(t, err)
	assert.Equal(t, int64(11), q.CurrentValue)
}

func TestUsageQuota_Check(t *testing.T) {
	tests := []struct {
		name      string
		current   int64
		limit     int64
		canAdd    bool
		available int64
		label     string
	}{
		{"below limit", 5, 10, true, 5, "50.0%"},
		{"at limit", 10, 10, false, 0, "100.0%"},
		{"over limit", 12, 10, false, 0, "120.0%"},
		{"unlimited", 1_000_000, UnlimitedValue, true, UnlimitedValue, "unlimited"},
		{"zero limit unused", 0, 0, false, 0, "0.0%"},
		{"zero limit used", 3, 0, false, 0, "100.0%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQuota(t, MetricActiveUsers, tt.limit)
			q.CurrentValue = tt.current
			c := q.Check()
			assert.Equal(t, tt.canAdd, c.CanAdd)
			assert.Equal(t, tt.available, c.Available)
			assert.Equal(t, tt.label, c.PercentageLabel())
			if !c.CanAdd {
				assert.True(t, c.Limit != UnlimitedValue && c.Current >= c.Limit)
			}
		})
	}
}

func TestUsageQuota_Rollover(t *testing.T) {
	t.Run("no-op inside the period", func(t *testing.T) {
		q := newQuota(t, MetricAPICalls, 100)
		q.CurrentValue = 42
		assert.False(t, q.Rollover(fixedNow.Add(24*time.Hour), true))
		assert.Equal(t, int64(42), q.CurrentValue)
	})

	t.Run("advances once and resets", func(t *testing.T) {
		q := newQuota(t, MetricAPICalls, 100)
		q.CurrentValue = 42
		later := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)

		assert.True(t, q.Rollover(later, true))
		assert.Zero(t, q.CurrentValue)
		assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), q.PeriodStart)
		assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), q.PeriodEnd)

		q.CurrentValue = 7
		assert.False(t, q.Rollover(later, true), "second run in the same period must not reset")
		assert.Equal(t, int64(7), q.CurrentValue)
	})

	t.Run("catches up missed periods", func(t *testing.T) {
		q := newQuota(t, MetricAPICalls, 100)
		later := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
		assert.True(t, q.Rollover(later, true))
		assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), q.PeriodStart)
		assert.True(t, q.PeriodEnd.After(later))
	})

	t.Run("gauges can keep their value", func(t *testing.T) {
		q := newQuota(t, MetricBranches, 5)
		q.CurrentValue = 3
		assert.True(t, q.Rollover(q.PeriodEnd, false))
		assert.Equal(t, int64(3), q.CurrentValue)
	})
}

func TestUsageQuota_SetLimit(t *testing.T) {
	q := newQuota(t, MetricBranches, 5)
	q.CurrentValue = 4
	version := q.Version

	prev, err := q.SetLimit(5, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(5), prev)
	assert.Equal(t, version, q.Version, "unchanged limit must not bump version")

	prev, err = q.SetLimit(UnlimitedValue, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(5), prev)
	assert.True(t, q.IsUnlimited())
	assert.Equal(t, int64(4), q.CurrentValue)

	_, err = q.SetLimit(-3, fixedNow)
	assert.Error(t, err)
}

func TestThresholds_Crossed(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name                           string
		prev, prevLimit, next, newLimit int64
		level                          AlertLevel
		crossed                        bool
	}{
		{"below warning", 1, 10, 7, 10, "", false},
		{"hits warning", 7, 10, 8, 10, AlertLevelWarning, true},
		{"already past warning", 8, 10, 9, 10, "", false},
		{"hits exceeded from warning", 9, 10, 11, 10, AlertLevelExceeded, true},
		{"jumps both thresholds", 0, 10, 10, 10, AlertLevelExceeded, true},
		{"stays exceeded", 11, 10, 12, 10, "", false},
		{"unlimited never alerts", 0, UnlimitedValue, 1 << 40, UnlimitedValue, "", false},
		{"limit lowered below usage", 6, 100, 6, 5, AlertLevelExceeded, true},
		{"zero limit any use", 0, 0, 1, 0, AlertLevelExceeded, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, crossed := th.Crossed(tt.prev, tt.prevLimit, tt.next, tt.newLimit)
			assert.Equal(t, tt.crossed, crossed)
			assert.Equal(t, tt.level, level)
		})
	}
}

func TestUsageAlert_Acknowledge(t *testing.T) {
	q := newQuota(t, MetricStorageBytes, 10)
	q.CurrentValue = 11
	alert := NewUsageAlert(q, AlertLevelExceeded, fixedNow)

	require.Len(t, alert.GetDomainEvents(), 1)
	ev := alert.GetDomainEvents()[0].(*UsageAlertRaisedEvent)
	assert.Equal(t, AlertLevelExceeded, ev.Level)
	assert.InDelta(t, 110.0, ev.Percentage, 0.001)

	by := uuid.New()
	alert.Acknowledge(&by, fixedNow)
	first := alert.AcknowledgedAt
	alert.Acknowledge(nil, fixedNow.Add(time.Hour))
	assert.True(t, alert.Acknowledged)
	assert.Equal(t, first, alert.AcknowledgedAt)
	assert.Equal(t, &by, alert.AcknowledgedBy)
}
