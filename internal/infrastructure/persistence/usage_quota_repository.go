package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormUsageQuotaRepository implements billing.UsageQuotaRepository using GORM
type GormUsageQuotaRepository struct {
	db *gorm.DB
}

// NewGormUsageQuotaRepository creates a new GormUsageQuotaRepository
func NewGormUsageQuotaRepository(db *gorm.DB) *GormUsageQuotaRepository {
	return &GormUsageQuotaRepository{db: db}
}

var forUpdate = clause.Locking{Strength: "UPDATE"}

// FindByTenantAndMetric reads a quota without locking
func (r *GormUsageQuotaRepository) FindByTenantAndMetric(ctx context.Context, tenantID uuid.UUID, metric billing.MetricType) (*billing.UsageQuota, error) {
	return r.findOne(r.db.WithContext(ctx).
		Where("tenant_id = ? AND metric_type = ?", tenantID, string(metric)))
}

// FindByTenantAndMetricForUpdate reads a quota and locks its row
func (r *GormUsageQuotaRepository) FindByTenantAndMetricForUpdate(ctx context.Context, tenantID uuid.UUID, metric billing.MetricType) (*billing.UsageQuota, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(forUpdate).
		Where("tenant_id = ? AND metric_type = ?", tenantID, string(metric)))
}

// FindByIDForUpdate locks a quota by ID
func (r *GormUsageQuotaRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.UsageQuota, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(forUpdate).Where("id = ?", id))
}

func (r *GormUsageQuotaRepository) findOne(query *gorm.DB) (*billing.UsageQuota, error) {
	var model models.UsageQuotaModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTenant returns every quota of a tenant in metric order
func (r *GormUsageQuotaRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*billing.UsageQuota, error) {
	return r.findMany(r.db.WithContext(ctx).Where("tenant_id = ?", tenantID))
}

// FindByTenantForUpdate locks every quota of a tenant. Rows are locked in
// metric order so concurrent callers cannot deadlock each other.
func (r *GormUsageQuotaRepository) FindByTenantForUpdate(ctx context.Context, tenantID uuid.UUID) ([]*billing.UsageQuota, error) {
	return r.findMany(r.db.WithContext(ctx).Clauses(forUpdate).Where("tenant_id = ?", tenantID))
}

func (r *GormUsageQuotaRepository) findMany(query *gorm.DB) ([]*billing.UsageQuota, error) {
	var quotaModels []models.UsageQuotaModel
	if err := query.Order("metric_type ASC").Find(&quotaModels).Error; err != nil {
		return nil, err
	}
	quotas := make([]*billing.UsageQuota, len(quotaModels))
	for i := range quotaModels {
		quotas[i] = quotaModels[i].ToDomain()
	}
	return quotas, nil
}

// ClaimDue returns IDs of quotas whose period has ended. Rows another worker
// already holds are skipped.
func (r *GormUsageQuotaRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.UsageQuotaModel{}).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("period_end <= ?", now).
		Order("period_end ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// Create inserts a quota. A second quota for the same tenant and metric fails
// with shared.ErrAlreadyExists.
func (r *GormUsageQuotaRepository) Create(ctx context.Context, quota *billing.UsageQuota) error {
	if err := r.db.WithContext(ctx).Create(models.UsageQuotaModelFromDomain(quota)).Error; err != nil {
		return translateError(err)
	}
	quota.MarkStored()
	return nil
}

// Update saves a quota with an optimistic version check
func (r *GormUsageQuotaRepository) Update(ctx context.Context, quota *billing.UsageQuota) error {
	expected := quota.StoredVersion()
	bumpVersion(&quota.BaseAggregateRoot)
	if err := updateVersioned(r.db.WithContext(ctx), models.UsageQuotaModelFromDomain(quota), quota.ID, expected); err != nil {
		return err
	}
	quota.MarkStored()
	return nil
}

// SummarizeByMetric aggregates usage across tenants
func (r *GormUsageQuotaRepository) SummarizeByMetric(ctx context.Context) ([]billing.MetricSummary, error) {
	type row struct {
		MetricType      string
		Tenants         int64
		TotalUsage      int64
		OverLimit       int64
		AboveWarning    int64
		UnlimitedQuotas int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.UsageQuotaModel{}).
		Select(`metric_type,
			COUNT(DISTINCT tenant_id) AS tenants,
			COALESCE(SUM(current_value), 0) AS total_usage,
			SUM(CASE WHEN limit_value >= 0 AND current_value >= limit_value THEN 1 ELSE 0 END) AS over_limit,
			SUM(CASE WHEN limit_value > 0 AND current_value * 100 >= limit_value * ? THEN 1 ELSE 0 END) AS above_warning,
			SUM(CASE WHEN limit_value = ? THEN 1 ELSE 0 END) AS unlimited_quotas`,
			billing.DefaultWarningPercent, billing.UnlimitedValue).
		Group("metric_type").
		Order("metric_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]billing.MetricSummary, len(rows))
	for i, r := range rows {
		out[i] = billing.MetricSummary{
			MetricType:      billing.MetricType(r.MetricType),
			Tenants:         r.Tenants,
			TotalUsage:      r.TotalUsage,
			OverLimit:       r.OverLimit,
			AboveWarning:    r.AboveWarning,
			UnlimitedQuotas: r.UnlimitedQuotas,
		}
	}
	return out, nil
}

// Ensure GormUsageQuotaRepository implements billing.UsageQuotaRepository
var _ billing.UsageQuotaRepository = (*GormUsageQuotaRepository)(nil)
