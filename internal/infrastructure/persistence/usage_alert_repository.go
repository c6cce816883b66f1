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
)

// GormUsageAlertRepository implements billing.UsageAlertRepository using GORM
type GormUsageAlertRepository struct {
	db *gorm.DB
}

// NewGormUsageAlertRepository creates a new GormUsageAlertRepository
func NewGormUsageAlertRepository(db *gorm.DB) *GormUsageAlertRepository {
	return &GormUsageAlertRepository{db: db}
}

// Create inserts an alert. The open-alert unique index turns a duplicate into
// shared.ErrAlreadyExists.
func (r *GormUsageAlertRepository) Create(ctx context.Context, alert *billing.UsageAlert) error {
	if err := r.db.WithContext(ctx).Create(models.UsageAlertModelFromDomain(alert)).Error; err != nil {
		return translateError(err)
	}
	alert.MarkStored()
	return nil
}

// FindByID finds one alert of a tenant
func (r *GormUsageAlertRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*billing.UsageAlert, error) {
	var model models.UsageAlertModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ExistsOpen reports whether an unacknowledged alert exists for the level
func (r *GormUsageAlertRepository) ExistsOpen(ctx context.Context, tenantID uuid.UUID, metric billing.MetricType, level billing.AlertLevel) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.UsageAlertModel{}).
		Where("tenant_id = ? AND metric_type = ? AND level = ? AND acknowledged = ?", tenantID, string(metric), string(level), false).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByTenant lists a tenant's alerts, newest first by default
func (r *GormUsageAlertRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, filter billing.UsageAlertFilter) ([]*billing.UsageAlert, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.UsageAlertModel{}).Where("tenant_id = ?", tenantID)
	if filter.MetricType != nil {
		query = query.Where("metric_type = ?", string(*filter.MetricType))
	}
	if filter.Acknowledged != nil {
		query = query.Where("acknowledged = ?", *filter.Acknowledged)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var alertModels []models.UsageAlertModel
	if err := applyListOptions(query, filter.Filter, usageAlertSort).Find(&alertModels).Error; err != nil {
		return nil, 0, err
	}
	alerts := make([]*billing.UsageAlert, len(alertModels))
	for i := range alertModels {
		alerts[i] = alertModels[i].ToDomain()
	}
	return alerts, total, nil
}

// Update saves an alert with an optimistic version check
func (r *GormUsageAlertRepository) Update(ctx context.Context, alert *billing.UsageAlert) error {
	expected := alert.StoredVersion()
	bumpVersion(&alert.BaseAggregateRoot)
	if err := updateVersioned(r.db.WithContext(ctx), models.UsageAlertModelFromDomain(alert), alert.ID, expected); err != nil {
		return err
	}
	alert.MarkStored()
	return nil
}

// AcknowledgeOpen closes every open alert for a metric
func (r *GormUsageAlertRepository) AcknowledgeOpen(ctx context.Context, tenantID uuid.UUID, metric billing.MetricType, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.UsageAlertModel{}).
		Where("tenant_id = ? AND metric_type = ? AND acknowledged = ?", tenantID, string(metric), false).
		Updates(map[string]any{
			"acknowledged":    true,
			"acknowledged_at": now,
			"updated_at":      now,
			"version":         gorm.Expr("version + 1"),
		})
	return result.RowsAffected, result.Error
}

// Ensure GormUsageAlertRepository implements billing.UsageAlertRepository
var _ billing.UsageAlertRepository = (*GormUsageAlertRepository)(nil)
