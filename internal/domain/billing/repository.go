package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
)

// UsageQuotaRepository persists quota counters
type UsageQuotaRepository interface {
	// FindByTenantAndMetric reads a quota without locking
	FindByTenantAndMetric(ctx context.Context, tenantID uuid.UUID, metric MetricType) (*UsageQuota, error)
	// FindByTenantAndMetricForUpdate reads a quota and holds its row lock until
	// the surrounding transaction ends
	FindByTenantAndMetricForUpdate(ctx context.Context, tenantID uuid.UUID, metric MetricType) (*UsageQuota, error)
	// FindByIDForUpdate locks a quota by ID
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*UsageQuota, error)
	FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*UsageQuota, error)
	// FindByTenantForUpdate locks every quota row of a tenant in metric order
	FindByTenantForUpdate(ctx context.Context, tenantID uuid.UUID) ([]*UsageQuota, error)
	// ClaimDue returns IDs of quotas whose period has ended, skipping rows locked
	// by other workers
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	Create(ctx context.Context, quota *UsageQuota) error
	Update(ctx context.Context, quota *UsageQuota) error
	// SummarizeByMetric aggregates usage across tenants for reporting
	SummarizeByMetric(ctx context.Context) ([]MetricSummary, error)
}

// MetricSummary is a cross-tenant usage aggregate
type MetricSummary struct {
	MetricType      MetricType
	Tenants         int64
	TotalUsage      int64
	OverLimit       int64
	AboveWarning    int64
	UnlimitedQuotas int64
}

// UsageAlertFilter narrows alert listings
type UsageAlertFilter struct {
	shared.Filter
	MetricType   *MetricType
	Acknowledged *bool
}

// UsageAlertRepository persists alerts
type UsageAlertRepository interface {
	// Create inserts an alert. A duplicate unacknowledged alert for the same
	// tenant, metric and level fails with shared.ErrAlreadyExists.
	Create(ctx context.Context, alert *UsageAlert) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*UsageAlert, error)
	ExistsOpen(ctx context.Context, tenantID uuid.UUID, metric MetricType, level AlertLevel) (bool, error)
	FindByTenant(ctx context.Context, tenantID uuid.UUID, filter UsageAlertFilter) ([]*UsageAlert, int64, error)
	Update(ctx context.Context, alert *UsageAlert) error
	// AcknowledgeOpen closes every open alert for the metric and returns how many were closed
	AcknowledgeOpen(ctx context.Context, tenantID uuid.UUID, metric MetricType, now time.Time) (int64, error)
}
