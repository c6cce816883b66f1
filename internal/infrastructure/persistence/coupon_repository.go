package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/coupon"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCouponRepository implements coupon.CouponRepository using GORM
type GormCouponRepository struct {
	db *gorm.DB
}

// NewGormCouponRepository creates a new GormCouponRepository
func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// FindByID finds a coupon by its ID
func (r *GormCouponRepository) FindByID(ctx context.Context, id uuid.UUID) (*coupon.Coupon, error) {
	return r.findOne(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByCode finds a coupon by its normalised code
func (r *GormCouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.findOne(r.db.WithContext(ctx).Where("code = ?", coupon.NormalizeCode(code)))
}

func (r *GormCouponRepository) findOne(query *gorm.DB) (*coupon.Coupon, error) {
	var model models.CouponModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists coupons matching the filter
func (r *GormCouponRepository) FindAll(ctx context.Context, filter coupon.CouponFilter) ([]*coupon.Coupon, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.CouponModel{})
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.Search != "" {
		keyword := likePattern(filter.Search)
		query = query.Where("LOWER(code) LIKE ? OR LOWER(description) LIKE ?", keyword, keyword)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var couponModels []models.CouponModel
	if err := applyListOptions(query, filter.Filter, couponSort).Find(&couponModels).Error; err != nil {
		return nil, 0, err
	}
	out := make([]*coupon.Coupon, len(couponModels))
	for i := range couponModels {
		out[i] = couponModels[i].ToDomain()
	}
	return out, total, nil
}

// ExistsByCode checks if a coupon with the given code exists
func (r *GormCouponRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.CouponModel{}).
		Where("code = ?", coupon.NormalizeCode(code)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a coupon
func (r *GormCouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	if err := r.db.WithContext(ctx).Create(models.CouponModelFromDomain(c)).Error; err != nil {
		return translateError(err)
	}
	c.MarkStored()
	return nil
}

// Update saves catalogue changes. The redemption counter is owned by
// IncrementRedemptions and never written from a loaded copy.
func (r *GormCouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	expected := c.StoredVersion()
	bumpVersion(&c.BaseAggregateRoot)
	if err := updateVersioned(r.db.WithContext(ctx), models.CouponModelFromDomain(c), c.ID, expected, "redemption_count"); err != nil {
		return err
	}
	c.MarkStored()
	return nil
}

// IncrementRedemptions bumps the counter unless the global limit is reached
func (r *GormCouponRepository) IncrementRedemptions(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.CouponModel{}).
		Where("id = ? AND (max_redemptions = 0 OR redemption_count < max_redemptions)", id).
		Updates(map[string]any{
			"redemption_count": gorm.Expr("redemption_count + 1"),
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Ensure GormCouponRepository implements coupon.CouponRepository
var _ coupon.CouponRepository = (*GormCouponRepository)(nil)

// GormRedemptionRepository implements coupon.RedemptionRepository using GORM
type GormRedemptionRepository struct {
	db *gorm.DB
}

// NewGormRedemptionRepository creates a new GormRedemptionRepository
func NewGormRedemptionRepository(db *gorm.DB) *GormRedemptionRepository {
	return &GormRedemptionRepository{db: db}
}

// CountByTenant counts a tenant's redemptions of one coupon
func (r *GormRedemptionRepository) CountByTenant(ctx context.Context, couponID, tenantID uuid.UUID) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.CouponRedemptionModel{}).
		Where("coupon_id = ? AND tenant_id = ?", couponID, tenantID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// Create inserts a redemption. Losing the race on the sequence index means
// another request already used this slot.
func (r *GormRedemptionRepository) Create(ctx context.Context, red *coupon.Redemption) error {
	if err := r.db.WithContext(ctx).Create(models.CouponRedemptionModelFromDomain(red)).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrCouponAlreadyRedeemed.Wrap(err)
		}
		return err
	}
	return nil
}

// FindByTransaction lists redemptions tied to a ledger entry
func (r *GormRedemptionRepository) FindByTransaction(ctx context.Context, transactionID uuid.UUID) ([]*coupon.Redemption, error) {
	var rows []models.CouponRedemptionModel
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("redeemed_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toRedemptions(rows), nil
}

// FindByCoupon pages through a coupon's redemptions
func (r *GormRedemptionRepository) FindByCoupon(ctx context.Context, couponID uuid.UUID, filter shared.Filter) ([]*coupon.Redemption, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.CouponRedemptionModel{}).Where("coupon_id = ?", couponID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.CouponRedemptionModel
	if err := applyListOptions(query, filter, redemptionSort).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toRedemptions(rows), total, nil
}

func toRedemptions(rows []models.CouponRedemptionModel) []*coupon.Redemption {
	out := make([]*coupon.Redemption, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// Ensure GormRedemptionRepository implements coupon.RedemptionRepository
var _ coupon.RedemptionRepository = (*GormRedemptionRepository)(nil)
