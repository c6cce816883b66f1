package report

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/report"
	"github.com/subgov/backend/internal/domain/shared"
)

// ReportService provides admin reporting over tenants, the ledger and usage
type ReportService struct {
	revenueRepo report.RevenueRepository
	statsRepo   report.TenantStatsRepository
	tenantRepo  identity.TenantRepository
	tierRepo    billing.TierRepository
	quotaRepo   billing.UsageQuotaRepository
	txRepo      ledger.TransactionRepository
	now         func() time.Time
}

// NewReportService creates a new ReportService
func NewReportService(
	revenueRepo report.RevenueRepository,
	statsRepo report.TenantStatsRepository,
	tenantRepo identity.TenantRepository,
	tierRepo billing.TierRepository,
	quotaRepo billing.UsageQuotaRepository,
	txRepo ledger.TransactionRepository,
) *ReportService {
	return &ReportService{
		revenueRepo: revenueRepo,
		statsRepo:   statsRepo,
		tenantRepo:  tenantRepo,
		tierRepo:    tierRepo,
		quotaRepo:   quotaRepo,
		txRepo:      txRepo,
		now:         time.Now,
	}
}

// SetClock overrides the time source
func (s *ReportService) SetClock(now func() time.Time) {
	s.now = now
}

// ===================== Revenue =====================

// RevenueFilter selects the reporting window. Zero values default to the
// current calendar month up to now.
type RevenueFilter struct {
	StartDate time.Time `form:"start_date" time_format:"2006-01-02"`
	EndDate   time.Time `form:"end_date" time_format:"2006-01-02"`
}

// RevenueLineResponse is paid revenue for one type, period and currency
type RevenueLineResponse struct {
	Type          string `json:"type"`
	BillingPeriod string `json:"billing_period,omitempty"`
	Currency      string `json:"currency"`
	Count         int64  `json:"count"`
	Gross         int64  `json:"gross"`
	Discount      int64  `json:"discount"`
	Net           int64  `json:"net"`
}

// CurrencyTotalResponse sums a window per currency
type CurrencyTotalResponse struct {
	Currency        string `json:"currency"`
	Gross           int64  `json:"gross"`
	Discount        int64  `json:"discount"`
	Net             int64  `json:"net"`
	Refunded        int64  `json:"refunded"`
	NetAfterRefunds int64  `json:"net_after_refunds"`
}

// RecurringResponse is the run rate in one currency
type RecurringResponse struct {
	Currency      string `json:"currency"`
	MRR           int64  `json:"mrr"`
	ARR           int64  `json:"arr"`
	PayingTenants int64  `json:"paying_tenants"`
}

// ChurnResponse is the share of tenants lost in the window, in percent
type ChurnResponse struct {
	ActiveAtStart int64   `json:"active_at_start"`
	Churned       int64   `json:"churned"`
	Rate          float64 `json:"rate"`
}

// RevenueReportResponse is the revenue report
type RevenueReportResponse struct {
	PeriodStart time.Time               `json:"period_start"`
	PeriodEnd   time.Time               `json:"period_end"`
	Lines       []RevenueLineResponse   `json:"lines"`
	Totals      []CurrencyTotalResponse `json:"totals"`
	Recurring   []RecurringResponse     `json:"recurring"`
	Churn       ChurnResponse           `json:"churn"`
}

// GetRevenueReport returns paid revenue in the window, the current run rate and churn
func (s *ReportService) GetRevenueReport(ctx context.Context, filter RevenueFilter) (*RevenueReportResponse, error) {
	now := s.now()
	from, to := filter.StartDate, filter.EndDate
	if from.IsZero() {
		from = billing.MeteringPeriodStart(now)
	}
	if to.IsZero() {
		to = now
	}
	if !from.Before(to) {
		return nil, shared.NewValidationError("INVALID_DATE_RANGE", "Start date must be before end date")
	}

	rows, err := s.revenueRepo.SumPaid(ctx, from, to)
	if err != nil {
		return nil, err
	}
	refunds, err := s.revenueRepo.SumRefunded(ctx, from, to)
	if err != nil {
		return nil, err
	}
	recurring, err := s.revenueRepo.ActiveRecurring(ctx, now)
	if err != nil {
		return nil, err
	}
	churn, err := s.statsRepo.Churn(ctx, from, to)
	if err != nil {
		return nil, err
	}

	resp := &RevenueReportResponse{
		PeriodStart: from,
		PeriodEnd:   to,
		Lines:       make([]RevenueLineResponse, 0, len(rows)),
		Totals:      currencyTotals(rows, refunds),
		Recurring:   RunRate(recurring),
		Churn:       churnResponse(churn),
	}
	for _, r := range rows {
		resp.Lines = append(resp.Lines, RevenueLineResponse{
			Type:          string(r.Type),
			BillingPeriod: string(r.BillingPeriod),
			Currency:      r.Currency,
			Count:         r.Count,
			Gross:         r.Gross,
			Discount:      r.Discount,
			Net:           r.Net,
		})
	}
	return resp, nil
}

func currencyTotals(rows []report.RevenueRow, refunds map[string]int64) []CurrencyTotalResponse {
	byCurrency := make(map[string]*CurrencyTotalResponse)
	get := func(c string) *CurrencyTotalResponse {
		t, ok := byCurrency[c]
		if !ok {
			t = &CurrencyTotalResponse{Currency: c}
			byCurrency[c] = t
		}
		return t
	}
	for _, r := range rows {
		t := get(r.Currency)
		t.Gross += r.Gross
		t.Discount += r.Discount
		t.Net += r.Net
	}
	for c, amount := range refunds {
		get(c).Refunded += amount
	}
	out := make([]CurrencyTotalResponse, 0, len(byCurrency))
	for _, t := range byCurrency {
		t.NetAfterRefunds = t.Net - t.Refunded
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// RunRate normalizes recurring revenue to a monthly figure per currency.
// Yearly payments count one twelfth; fractions are dropped after summing.
func RunRate(rows []report.RecurringRow) []RecurringResponse {
	type acc struct {
		mrr     decimal.Decimal
		tenants map[string]struct{}
	}
	byCurrency := make(map[string]*acc)
	for _, r := range rows {
		a, ok := byCurrency[r.Currency]
		if !ok {
			a = &acc{mrr: decimal.Zero, tenants: make(map[string]struct{})}
			byCurrency[r.Currency] = a
		}
		months := int64(r.BillingPeriod.Months())
		if months <= 0 {
			months = 1
		}
		a.mrr = a.mrr.Add(decimal.NewFromInt(r.Net).Div(decimal.NewFromInt(months)))
		a.tenants[r.TenantID.String()] = struct{}{}
	}
	out := make([]RecurringResponse, 0, len(byCurrency))
	for c, a := range byCurrency {
		mrr := a.mrr.Floor().IntPart()
		out = append(out, RecurringResponse{
			Currency:      c,
			MRR:           mrr,
			ARR:           mrr * 12,
			PayingTenants: int64(len(a.tenants)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

func churnResponse(c report.ChurnCounts) ChurnResponse {
	resp := ChurnResponse{ActiveAtStart: c.ActiveAtStart, Churned: c.Churned}
	if c.ActiveAtStart > 0 {
		resp.Rate = decimal.NewFromInt(c.Churned).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(c.ActiveAtStart)).
			Round(2).
			InexactFloat64()
	}
	return resp
}

// ===================== Tier distribution =====================

// TierShareResponse is the number of tenants on one tier
type TierShareResponse struct {
	TierCode   string  `json:"tier_code"`
	TierName   string  `json:"tier_name"`
	IsActive   bool    `json:"is_active"`
	Tenants    int64   `json:"tenants"`
	Percentage float64 `json:"percentage"`
}

// TierDistributionResponse is the tier distribution report
type TierDistributionResponse struct {
	TotalTenants int64               `json:"total_tenants"`
	Tiers        []TierShareResponse `json:"tiers"`
	ByStatus     map[string]int64    `json:"by_status"`
}

// GetTierDistribution counts tenants per tier in catalogue order, and per status
func (s *ReportService) GetTierDistribution(ctx context.Context) (*TierDistributionResponse, error) {
	tiers, err := s.tierRepo.FindAll(ctx, true)
	if err != nil {
		return nil, err
	}
	byTier, err := s.tenantRepo.CountByTier(ctx)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.tenantRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	resp := &TierDistributionResponse{
		Tiers:    make([]TierShareResponse, 0, len(tiers)),
		ByStatus: make(map[string]int64, len(byStatus)),
	}
	for status, n := range byStatus {
		resp.ByStatus[string(status)] = n
		resp.TotalTenants += n
	}
	for _, t := range tiers {
		n := byTier[t.Code]
		share := TierShareResponse{TierCode: t.Code, TierName: t.Name, IsActive: t.IsActive, Tenants: n}
		if resp.TotalTenants > 0 {
			share.Percentage = decimal.NewFromInt(n * 100).Div(decimal.NewFromInt(resp.TotalTenants)).Round(2).InexactFloat64()
		}
		resp.Tiers = append(resp.Tiers, share)
	}
	return resp, nil
}

// ===================== Usage =====================

// MetricUsageResponse aggregates one metric across tenants
type MetricUsageResponse struct {
	MetricType      string `json:"metric_type"`
	Tenants         int64  `json:"tenants"`
	TotalUsage      int64  `json:"total_usage"`
	OverLimit       int64  `json:"over_limit"`
	AboveWarning    int64  `json:"above_warning"`
	UnlimitedQuotas int64  `json:"unlimited_quotas"`
}

// GetUsageOverview returns usage per metric in the canonical metric order
func (s *ReportService) GetUsageOverview(ctx context.Context) ([]MetricUsageResponse, error) {
	summaries, err := s.quotaRepo.SummarizeByMetric(ctx)
	if err != nil {
		return nil, err
	}
	byMetric := make(map[billing.MetricType]billing.MetricSummary, len(summaries))
	for _, m := range summaries {
		byMetric[m.MetricType] = m
	}
	out := make([]MetricUsageResponse, 0, len(billing.AllMetricTypes()))
	for _, metric := range billing.AllMetricTypes() {
		m := byMetric[metric]
		out = append(out, MetricUsageResponse{
			MetricType:      string(metric),
			Tenants:         m.Tenants,
			TotalUsage:      m.TotalUsage,
			OverLimit:       m.OverLimit,
			AboveWarning:    m.AboveWarning,
			UnlimitedQuotas: m.UnlimitedQuotas,
		})
	}
	return out, nil
}

// ===================== Consistency =====================

// ConsistencyResponse flags ledger entries that should not exist
type ConsistencyResponse struct {
	OrphanedPendingTransactions int64 `json:"orphaned_pending_transactions"`
	Healthy                     bool  `json:"healthy"`
}

// GetConsistency counts pending transactions whose upgrade request is already closed
func (s *ReportService) GetConsistency(ctx context.Context) (*ConsistencyResponse, error) {
	n, err := s.txRepo.CountPendingForUpgrades(ctx)
	if err != nil {
		return nil, err
	}
	return &ConsistencyResponse{OrphanedPendingTransactions: n, Healthy: n == 0}, nil
}
