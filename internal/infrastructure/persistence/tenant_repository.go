package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTenantRepository implements identity.TenantRepository using GORM
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a new GormTenantRepository
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// FindByID finds a tenant by its ID
func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	return r.findOne(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate finds a tenant and locks its row
func (r *GormTenantRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

// FindByCode finds a tenant by its unique code
func (r *GormTenantRepository) FindByCode(ctx context.Context, code string) (*identity.Tenant, error) {
	return r.findOne(r.db.WithContext(ctx).Where("UPPER(code) = ?", strings.ToUpper(strings.TrimSpace(code))))
}

func (r *GormTenantRepository) findOne(query *gorm.DB) (*identity.Tenant, error) {
	var model models.TenantModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds all tenants matching the filter
func (r *GormTenantRepository) FindAll(ctx context.Context, filter identity.TenantFilter) ([]*identity.Tenant, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.TenantModel{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.TierCode != "" {
		query = query.Where("tier_code = ?", filter.TierCode)
	}
	if filter.Search != "" {
		keyword := likePattern(filter.Search)
		query = query.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ? OR LOWER(contact_email) LIKE ?", keyword, keyword, keyword)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var tenantModels []models.TenantModel
	if err := applyListOptions(query, filter.Filter, tenantSort).Find(&tenantModels).Error; err != nil {
		return nil, 0, err
	}

	tenants := make([]*identity.Tenant, len(tenantModels))
	for i := range tenantModels {
		tenants[i] = tenantModels[i].ToDomain()
	}
	return tenants, total, nil
}

// ExistsByCode checks if a tenant with the given code exists
func (r *GormTenantRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.TenantModel{}).
		Where("UPPER(code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a new tenant
func (r *GormTenantRepository) Create(ctx context.Context, tenant *identity.Tenant) error {
	if err := r.db.WithContext(ctx).Create(models.TenantModelFromDomain(tenant)).Error; err != nil {
		return translateError(err)
	}
	tenant.MarkStored()
	return nil
}

// Update saves a tenant with an optimistic version check
func (r *GormTenantRepository) Update(ctx context.Context, tenant *identity.Tenant) error {
	expected := tenant.StoredVersion()
	bumpVersion(&tenant.BaseAggregateRoot)
	if err := updateVersioned(r.db.WithContext(ctx), models.TenantModelFromDomain(tenant), tenant.ID, expected); err != nil {
		return err
	}
	tenant.MarkStored()
	return nil
}

type groupCount struct {
	GroupKey string
	Count    int64
}

// CountByStatus returns the number of tenants in each status
func (r *GormTenantRepository) CountByStatus(ctx context.Context) (map[identity.TenantStatus]int64, error) {
	var rows []groupCount
	if err := r.db.WithContext(ctx).Model(&models.TenantModel{}).
		Select("status AS group_key, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[identity.TenantStatus]int64, len(rows))
	for _, row := range rows {
		counts[identity.TenantStatus(row.GroupKey)] = row.Count
	}
	return counts, nil
}

// CountByTier returns the number of tenants on each tier
func (r *GormTenantRepository) CountByTier(ctx context.Context) (map[string]int64, error) {
	var rows []groupCount
	if err := r.db.WithContext(ctx).Model(&models.TenantModel{}).
		Select("tier_code AS group_key, COUNT(*) AS count").
		Group("tier_code").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.GroupKey] = row.Count
	}
	return counts, nil
}

// Ensure GormTenantRepository implements identity.TenantRepository
var _ identity.TenantRepository = (*GormTenantRepository)(nil)
