package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/report"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/infrastructure/persistence"
	"github.com/subgov/backend/tests/testutil"
	"gorm.io/gorm"
)

// MockRevenueRepository is a mock implementation of report.RevenueRepository
type MockRevenueRepository struct {
	mock.Mock
}

func (m *MockRevenueRepository) SumPaid(ctx context.Context, from, to time.Time) ([]report.RevenueRow, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]report.RevenueRow), args.Error(1)
}

func (m *MockRevenueRepository) SumRefunded(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *MockRevenueRepository) ActiveRecurring(ctx context.Context, now time.Time) ([]report.RecurringRow, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]report.RecurringRow), args.Error(1)
}

// MockTenantStatsRepository is a mock implementation of report.TenantStatsRepository
type MockTenantStatsRepository struct {
	mock.Mock
}

func (m *MockTenantStatsRepository) Churn(ctx context.Context, from, to time.Time) (report.ChurnCounts, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(report.ChurnCounts), args.Error(1)
}

func newMockedReportService(t *testing.T) (*ReportService, *MockRevenueRepository, *MockTenantStatsRepository) {
	t.Helper()
	revenue := new(MockRevenueRepository)
	stats := new(MockTenantStatsRepository)
	svc := NewReportService(revenue, stats, nil, nil, nil, nil)
	svc.SetClock(func() time.Time { return testutil.Now })
	return svc, revenue, stats
}

func TestReportService_GetRevenueReport(t *testing.T) {
	svc, revenue, stats := newMockedReportService(t)
	ctx := context.Background()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	revenue.On("SumPaid", ctx, from, testutil.Now).Return([]report.RevenueRow{
		{Type: ledger.TypeSubscription, BillingPeriod: billing.BillingPeriodMonthly, Currency: "USD", Count: 2, Gross: 5_800, Discount: 800, Net: 5_000},
		{Type: ledger.TypeManual, Currency: "USD", Count: 1, Gross: 300, Net: 300},
		{Type: ledger.TypeUpgrade, BillingPeriod: billing.BillingPeriodYearly, Currency: "EUR", Count: 1, Gross: 12_000, Net: 12_000},
	}, nil)
	revenue.On("SumRefunded", ctx, from, testutil.Now).Return(map[string]int64{"USD": 1_000}, nil)
	revenue.On("ActiveRecurring", ctx, testutil.Now).Return([]report.RecurringRow{
		{TenantID: testutil.NewTestUUID("a"), BillingPeriod: billing.BillingPeriodMonthly, Currency: "USD", Net: 2_900},
	}, nil)
	stats.On("Churn", ctx, from, testutil.Now).Return(report.ChurnCounts{ActiveAtStart: 3, Churned: 1}, nil)

	resp, err := svc.GetRevenueReport(ctx, RevenueFilter{})
	require.NoError(t, err)

	assert.Equal(t, from, resp.PeriodStart)
	assert.Equal(t, testutil.Now, resp.PeriodEnd)
	assert.Len(t, resp.Lines, 3)
	require.Len(t, resp.Totals, 2)
	assert.Equal(t, CurrencyTotalResponse{Currency: "EUR", Gross: 12_000, Net: 12_000, NetAfterRefunds: 12_000}, resp.Totals[0])
	assert.Equal(t, CurrencyTotalResponse{Currency: "USD", Gross: 6_100, Discount: 800, Net: 5_300, Refunded: 1_000, NetAfterRefunds: 4_300}, resp.Totals[1])
	require.Len(t, resp.Recurring, 1)
	assert.Equal(t, int64(2_900), resp.Recurring[0].MRR)
	assert.Equal(t, 1, int(resp.Recurring[0].PayingTenants))
	assert.InDelta(t, 33.33, resp.Churn.Rate, 0.001)

	revenue.AssertExpectations(t)
	stats.AssertExpectations(t)
}

func TestReportService_GetRevenueReport_InvalidRange(t *testing.T) {
	svc, revenue, _ := newMockedReportService(t)

	_, err := svc.GetRevenueReport(context.Background(), RevenueFilter{
		StartDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.True(t, shared.IsKind(err, shared.KindValidation))
	revenue.AssertNotCalled(t, "SumPaid", mock.Anything, mock.Anything, mock.Anything)
}

func TestReportService_GetRevenueReport_RepositoryError(t *testing.T) {
	svc, revenue, _ := newMockedReportService(t)
	boom := errors.New("connection reset")
	revenue.On("SumPaid", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)

	_, err := svc.GetRevenueReport(context.Background(), RevenueFilter{})
	assert.ErrorIs(t, err, boom)
}

func TestRunRate(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	rows := []report.RecurringRow{
		{TenantID: a, BillingPeriod: billing.BillingPeriodMonthly, Currency: "USD", Net: 2_900},
		{TenantID: b, BillingPeriod: billing.BillingPeriodYearly, Currency: "USD", Net: 29_000},
		{TenantID: b, BillingPeriod: billing.BillingPeriodYearly, Currency: "USD", Net: 5},
		{TenantID: a, BillingPeriod: billing.BillingPeriodMonthly, Currency: "EUR", Net: 1_000},
	}

	got := RunRate(rows)
	require.Len(t, got, 2)
	assert.Equal(t, "EUR", got[0].Currency)
	assert.Equal(t, int64(1_000), got[0].MRR)

	// 2900 + 29000/12 + 5/12 = 2900 + 2416.67 + 0.42 = 5317.08, floored after summing
	assert.Equal(t, "USD", got[1].Currency)
	assert.Equal(t, int64(5_317), got[1].MRR)
	assert.Equal(t, int64(5_317*12), got[1].ARR)
	assert.Equal(t, int64(2), got[1].PayingTenants)

	assert.Empty(t, RunRate(nil))
}

func TestChurnResponse_NoActiveTenants(t *testing.T) {
	resp := churnResponse(report.ChurnCounts{Churned: 2})
	assert.Zero(t, resp.Rate)
}

func newStoreReportService(t *testing.T) (*ReportService, *gorm.DB, map[string]*billing.Tier) {
	t.Helper()
	db := testutil.NewTestDB(t)
	tiers := testutil.SeedDefaultTiers(t, db)
	repo := persistence.NewGormReportRepository(db)
	svc := NewReportService(repo, repo,
		persistence.NewGormTenantRepository(db),
		persistence.NewGormTierRepository(db),
		persistence.NewGormUsageQuotaRepository(db),
		persistence.NewGormTransactionRepository(db))
	svc.SetClock(func() time.Time { return testutil.Now })
	return svc, db, tiers
}

func TestReportService_GetTierDistribution(t *testing.T) {
	svc, db, tiers := newStoreReportService(t)
	ctx := context.Background()
	testutil.SeedTenant(t, db, "A", tiers[billing.TierBasic], testutil.Now)
	testutil.SeedTenant(t, db, "B", tiers[billing.TierBasic], testutil.Now)
	c := testutil.SeedTenant(t, db, "C", tiers[billing.TierPremium], testutil.Now)
	require.NoError(t, c.ChangeStatus(identity.TenantStatusSuspended, testutil.Now))
	require.NoError(t, persistence.NewGormTenantRepository(db).Update(ctx, c))
	testutil.SeedTenant(t, db, "D", tiers[billing.TierFree], testutil.Now)

	resp, err := svc.GetTierDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), resp.TotalTenants)
	assert.Equal(t, int64(3), resp.ByStatus[string(identity.TenantStatusActive)])
	assert.Equal(t, int64(1), resp.ByStatus[string(identity.TenantStatusSuspended)])

	require.Len(t, resp.Tiers, 4)
	codes := make([]string, len(resp.Tiers))
	for i, s := range resp.Tiers {
		codes[i] = s.TierCode
	}
	assert.Equal(t, []string{billing.TierFree, billing.TierBasic, billing.TierPremium, billing.TierEnterprise}, codes)
	assert.Equal(t, int64(2), resp.Tiers[1].Tenants)
	assert.InDelta(t, 50.0, resp.Tiers[1].Percentage, 0.001)
	assert.Zero(t, resp.Tiers[3].Tenants)
}

func TestReportService_GetUsageOverview(t *testing.T) {
	svc, db, tiers := newStoreReportService(t)
	a := testutil.SeedTenant(t, db, "A", tiers[billing.TierBasic], testutil.Now)
	b := testutil.SeedTenant(t, db, "B", tiers[billing.TierEnterprise], testutil.Now)
	testutil.SetLimit(t, db, a.ID, billing.MetricBranches, 3)
	testutil.SetUsage(t, db, a.ID, billing.MetricBranches, 4)
	testutil.SetUsage(t, db, b.ID, billing.MetricBranches, 10)

	overview, err := svc.GetUsageOverview(context.Background())
	require.NoError(t, err)
	require.Len(t, overview, len(billing.AllMetricTypes()))
	for i, m := range billing.AllMetricTypes() {
		assert.Equal(t, string(m), overview[i].MetricType)
	}

	branches := overview[len(overview)-1]
	assert.Equal(t, string(billing.MetricBranches), branches.MetricType)
	assert.Equal(t, int64(2), branches.Tenants)
	assert.Equal(t, int64(14), branches.TotalUsage)
	assert.Equal(t, int64(1), branches.OverLimit)
	assert.Equal(t, int64(1), branches.UnlimitedQuotas)
}

func TestReportService_GetConsistency(t *testing.T) {
	svc, _, _ := newStoreReportService(t)

	resp, err := svc.GetConsistency(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Healthy)
	assert.Zero(t, resp.OrphanedPendingTransactions)
}
