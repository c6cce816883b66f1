package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/domain/upgrade"
	"github.com/subgov/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormUpgradeRequestRepository implements upgrade.RequestRepository using GORM
type GormUpgradeRequestRepository struct {
	db *gorm.DB
}

// NewGormUpgradeRequestRepository creates a new GormUpgradeRequestRepository
func NewGormUpgradeRequestRepository(db *gorm.DB) *GormUpgradeRequestRepository {
	return &GormUpgradeRequestRepository{db: db}
}

// FindByID finds a request by its ID
func (r *GormUpgradeRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*upgrade.UpgradeRequest, error) {
	return r.findOne(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate finds a request and locks its row
func (r *GormUpgradeRequestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*upgrade.UpgradeRequest, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(forUpdate).Where("id = ?", id))
}

// FindByNumber finds a request by its number
func (r *GormUpgradeRequestRepository) FindByNumber(ctx context.Context, number string) (*upgrade.UpgradeRequest, error) {
	return r.findOne(r.db.WithContext(ctx).Where("request_number = ?", number))
}

// FindOpenByTenant returns the tenant's in-flight request
func (r *GormUpgradeRequestRepository) FindOpenByTenant(ctx context.Context, tenantID uuid.UUID) (*upgrade.UpgradeRequest, error) {
	return r.findOne(r.db.WithContext(ctx).
		Where("tenant_id = ? AND status IN ?", tenantID, statusStrings(upgrade.OpenStatuses())).
		Order("created_at DESC"))
}

func (r *GormUpgradeRequestRepository) findOne(query *gorm.DB) (*upgrade.UpgradeRequest, error) {
	var model models.UpgradeRequestModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists requests matching the filter
func (r *GormUpgradeRequestRepository) FindAll(ctx context.Context, filter upgrade.RequestFilter) ([]*upgrade.UpgradeRequest, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.UpgradeRequestModel{})
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", statusStrings(filter.Statuses))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reqModels []models.UpgradeRequestModel
	if err := applyListOptions(query, filter.Filter, upgradeRequestSort).Find(&reqModels).Error; err != nil {
		return nil, 0, err
	}
	out := make([]*upgrade.UpgradeRequest, len(reqModels))
	for i := range reqModels {
		out[i] = reqModels[i].ToDomain()
	}
	return out, total, nil
}

// FindExpiredIDs returns open requests past their deadline, oldest first.
// Requests already under review are left to the reviewer.
func (r *GormUpgradeRequestRepository) FindExpiredIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&models.UpgradeRequestModel{}).
		Where("status IN ? AND expires_at <= ?",
			[]string{string(upgrade.StatusPending), string(upgrade.StatusPaymentUploaded)}, now).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// Create inserts a request
func (r *GormUpgradeRequestRepository) Create(ctx context.Context, req *upgrade.UpgradeRequest) error {
	if err := r.db.WithContext(ctx).Create(models.UpgradeRequestModelFromDomain(req)).Error; err != nil {
		return translateError(err)
	}
	req.MarkStored()
	return nil
}

// Update saves a request with an optimistic version check
func (r *GormUpgradeRequestRepository) Update(ctx context.Context, req *upgrade.UpgradeRequest) error {
	expected := req.StoredVersion()
	bumpVersion(&req.BaseAggregateRoot)
	if err := updateVersioned(r.db.WithContext(ctx), models.UpgradeRequestModelFromDomain(req), req.ID, expected); err != nil {
		return err
	}
	req.MarkStored()
	return nil
}

// Ensure GormUpgradeRequestRepository implements upgrade.RequestRepository
var _ upgrade.RequestRepository = (*GormUpgradeRequestRepository)(nil)
