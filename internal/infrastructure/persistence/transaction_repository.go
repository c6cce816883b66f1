package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/domain/upgrade"
	"github.com/subgov/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormTransactionRepository implements ledger.TransactionRepository using GORM
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewGormTransactionRepository creates a new GormTransactionRepository
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// FindByID finds a transaction by its ID
func (r *GormTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.BillingTransaction, error) {
	return r.findOne(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate finds a transaction and locks its row
func (r *GormTransactionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.BillingTransaction, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(forUpdate).Where("id = ?", id))
}

// FindByNumber finds a transaction by its number
func (r *GormTransactionRepository) FindByNumber(ctx context.Context, number string) (*ledger.BillingTransaction, error) {
	return r.findOne(r.db.WithContext(ctx).Where("transaction_number = ?", number))
}

// FindByUpgradeRequest finds the most recent transaction opened for a request
func (r *GormTransactionRepository) FindByUpgradeRequest(ctx context.Context, requestID uuid.UUID) (*ledger.BillingTransaction, error) {
	return r.findOne(r.db.WithContext(ctx).Where("upgrade_request_id = ?", requestID).Order("created_at DESC"))
}

func (r *GormTransactionRepository) findOne(query *gorm.DB) (*ledger.BillingTransaction, error) {
	var model models.BillingTransactionModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists transactions matching the filter
func (r *GormTransactionRepository) FindAll(ctx context.Context, filter ledger.TransactionFilter) ([]*ledger.BillingTransaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.BillingTransactionModel{})

	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.Type != nil {
		query = query.Where("type = ?", string(*filter.Type))
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}
	if filter.Search != "" {
		keyword := likePattern(filter.Search)
		query = query.Where("LOWER(transaction_number) LIKE ? OR LOWER(description) LIKE ? OR LOWER(coupon_code) LIKE ?", keyword, keyword, keyword)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txModels []models.BillingTransactionModel
	if err := applyListOptions(query, filter.Filter, transactionSort).Find(&txModels).Error; err != nil {
		return nil, 0, err
	}
	out := make([]*ledger.BillingTransaction, len(txModels))
	for i := range txModels {
		out[i] = txModels[i].ToDomain()
	}
	return out, total, nil
}

// Create inserts a transaction
func (r *GormTransactionRepository) Create(ctx context.Context, tx *ledger.BillingTransaction) error {
	if err := r.db.WithContext(ctx).Create(models.BillingTransactionModelFromDomain(tx)).Error; err != nil {
		return translateError(err)
	}
	tx.MarkStored()
	return nil
}

// Update saves a transaction with an optimistic version check
func (r *GormTransactionRepository) Update(ctx context.Context, tx *ledger.BillingTransaction) error {
	expected := tx.StoredVersion()
	bumpVersion(&tx.BaseAggregateRoot)
	if err := updateVersioned(r.db.WithContext(ctx), models.BillingTransactionModelFromDomain(tx), tx.ID, expected); err != nil {
		return err
	}
	tx.MarkStored()
	return nil
}

// CountPendingForUpgrades counts pending transactions whose upgrade request
// has already left the open states
func (r *GormTransactionRepository) CountPendingForUpgrades(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BillingTransactionModel{}).
		Joins("JOIN upgrade_requests ON upgrade_requests.id = billing_transactions.upgrade_request_id").
		Where("billing_transactions.status = ?", string(ledger.StatusPending)).
		Where("upgrade_requests.status NOT IN ?", statusStrings(upgrade.OpenStatuses())).
		Count(&count).Error
	return count, err
}

func statusStrings(statuses []upgrade.RequestStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Ensure GormTransactionRepository implements ledger.TransactionRepository
var _ ledger.TransactionRepository = (*GormTransactionRepository)(nil)
