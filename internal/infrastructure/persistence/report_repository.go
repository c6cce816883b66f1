package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/report"
	"gorm.io/gorm"
)

// recurringTypes are the ledger entries that count towards run-rate revenue
var recurringTypes = []string{
	string(ledger.TypeSubscription),
	string(ledger.TypeUpgrade),
	string(ledger.TypeRenewal),
}

// GormReportRepository implements the report read models using GORM
type GormReportRepository struct {
	db *gorm.DB
}

// NewGormReportRepository creates a new GormReportRepository
func NewGormReportRepository(db *gorm.DB) *GormReportRepository {
	return &GormReportRepository{db: db}
}

// SumPaid groups transactions paid within [from, to)
func (r *GormReportRepository) SumPaid(ctx context.Context, from, to time.Time) ([]report.RevenueRow, error) {
	type row struct {
		Type          string
		BillingPeriod string
		Currency      string
		Count         int64
		Gross         int64
		Discount      int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Table("billing_transactions bt").
		Select(`bt.type, COALESCE(bt.billing_period, '') AS billing_period, bt.currency,
			COUNT(*) AS count,
			COALESCE(SUM(bt.amount), 0) AS gross,
			COALESCE(SUM(bt.discount_amount), 0) AS discount`).
		Where("bt.status = ?", string(ledger.StatusPaid)).
		Where("bt.paid_at >= ? AND bt.paid_at < ?", from, to).
		Group("bt.type, bt.billing_period, bt.currency").
		Order("bt.currency, bt.type, bt.billing_period").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]report.RevenueRow, len(rows))
	for i, r := range rows {
		out[i] = report.RevenueRow{
			Type:          ledger.TransactionType(r.Type),
			BillingPeriod: billing.BillingPeriod(r.BillingPeriod),
			Currency:      r.Currency,
			Count:         r.Count,
			Gross:         r.Gross,
			Discount:      r.Discount,
			Net:           r.Gross - r.Discount,
		}
	}
	return out, nil
}

// SumRefunded totals net refunds within [from, to) per currency
func (r *GormReportRepository) SumRefunded(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	type row struct {
		Currency string
		Net      int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Table("billing_transactions").
		Select("currency, COALESCE(SUM(amount - discount_amount), 0) AS net").
		Where("status = ?", string(ledger.StatusRefunded)).
		Where("refunded_at >= ? AND refunded_at < ?", from, to).
		Group("currency").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Currency] = r.Net
	}
	return out, nil
}

// ActiveRecurring lists recurring revenue paid since the start of each active
// tenant's current period
func (r *GormReportRepository) ActiveRecurring(ctx context.Context, now time.Time) ([]report.RecurringRow, error) {
	type row struct {
		TenantID      uuid.UUID
		BillingPeriod string
		Currency      string
		Net           int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Table("billing_transactions bt").
		Select(`bt.tenant_id,
			COALESCE(NULLIF(bt.billing_period, ''), t.billing_period) AS billing_period,
			bt.currency,
			COALESCE(SUM(bt.amount - bt.discount_amount), 0) AS net`).
		Joins("JOIN tenants t ON t.id = bt.tenant_id").
		Where("t.status = ?", string(identity.TenantStatusActive)).
		Where("t.current_period_start IS NOT NULL AND t.current_period_end > ?", now).
		Where("bt.status = ? AND bt.type IN ?", string(ledger.StatusPaid), recurringTypes).
		Where("bt.paid_at >= t.current_period_start").
		Group("bt.tenant_id, COALESCE(NULLIF(bt.billing_period, ''), t.billing_period), bt.currency").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]report.RecurringRow, len(rows))
	for i, r := range rows {
		out[i] = report.RecurringRow{
			TenantID:      r.TenantID,
			BillingPeriod: billing.BillingPeriod(r.BillingPeriod),
			Currency:      r.Currency,
			Net:           r.Net,
		}
	}
	return out, nil
}

// Churn counts the tenants alive at from and those lost inside [from, to)
func (r *GormReportRepository) Churn(ctx context.Context, from, to time.Time) (report.ChurnCounts, error) {
	churned := []string{string(identity.TenantStatusCancelled), string(identity.TenantStatusExpired)}
	var counts report.ChurnCounts
	if err := r.db.WithContext(ctx).Table("tenants").
		Where("created_at < ?", from).
		Where("cancelled_at IS NULL OR cancelled_at >= ?", from).
		Count(&counts.ActiveAtStart).Error; err != nil {
		return counts, err
	}
	if err := r.db.WithContext(ctx).Table("tenants").
		Where("status IN ?", churned).
		Where("cancelled_at >= ? AND cancelled_at < ?", from, to).
		Count(&counts.Churned).Error; err != nil {
		return counts, err
	}
	return counts, nil
}

// Ensure GormReportRepository implements the report repositories
var (
	_ report.RevenueRepository     = (*GormReportRepository)(nil)
	_ report.TenantStatsRepository = (*GormReportRepository)(nil)
)
