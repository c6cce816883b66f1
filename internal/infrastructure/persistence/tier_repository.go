package persistence

import (
	"context"
	"errors"

	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTierRepository implements billing.TierRepository using GORM
type GormTierRepository struct {
	db *gorm.DB
}

// NewGormTierRepository creates a new GormTierRepository
func NewGormTierRepository(db *gorm.DB) *GormTierRepository {
	return &GormTierRepository{db: db}
}

// FindByCode finds a tier by its code
func (r *GormTierRepository) FindByCode(ctx context.Context, code string) (*billing.Tier, error) {
	var model models.TierModel
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists the catalogue in display order
func (r *GormTierRepository) FindAll(ctx context.Context, includeInactive bool) ([]*billing.Tier, error) {
	query := r.db.WithContext(ctx).Model(&models.TierModel{})
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	var tierModels []models.TierModel
	if err := query.Order("sort_order ASC, code ASC").Find(&tierModels).Error; err != nil {
		return nil, err
	}
	tiers := make([]*billing.Tier, len(tierModels))
	for i := range tierModels {
		tiers[i] = tierModels[i].ToDomain()
	}
	return tiers, nil
}

// Save inserts or replaces a tier
func (r *GormTierRepository) Save(ctx context.Context, tier *billing.Tier) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description", "monthly_price", "yearly_price", "currency", "limits", "sort_order", "is_active", "updated_at"}),
		}).
		Create(models.TierModelFromDomain(tier)).Error
}

// Ensure GormTierRepository implements billing.TierRepository
var _ billing.TierRepository = (*GormTierRepository)(nil)
