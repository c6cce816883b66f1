// Package report holds read models for cross-tenant subscription reporting.
package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/ledger"
)

// RevenueRow is one group of paid revenue
type RevenueRow struct {
	Type          ledger.TransactionType
	BillingPeriod billing.BillingPeriod
	Currency      string
	Count         int64
	Gross         int64
	Discount      int64
	Net           int64
}

// RecurringRow is recurring revenue paid by one active tenant within its
// current subscription period
type RecurringRow struct {
	TenantID      uuid.UUID
	BillingPeriod billing.BillingPeriod
	Currency      string
	Net           int64
}

// ChurnCounts are the inputs of the churn rate for a window
type ChurnCounts struct {
	// ActiveAtStart counts tenants created before the window that had not churned by then
	ActiveAtStart int64
	// Churned counts tenants that were cancelled or expired inside the window
	Churned int64
}

// RevenueRepository aggregates paid ledger entries
type RevenueRepository interface {
	// SumPaid groups transactions paid within [from, to) by type, period and currency
	SumPaid(ctx context.Context, from, to time.Time) ([]RevenueRow, error)
	// SumRefunded totals refunds within [from, to) per currency
	SumRefunded(ctx context.Context, from, to time.Time) (map[string]int64, error)
	// ActiveRecurring lists recurring revenue that falls in active tenants' current periods
	ActiveRecurring(ctx context.Context, now time.Time) ([]RecurringRow, error)
}

// TenantStatsRepository reads tenant lifecycle aggregates
type TenantStatsRepository interface {
	Churn(ctx context.Context, from, to time.Time) (ChurnCounts, error)
}
