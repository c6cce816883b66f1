package persistence

import (
	"context"

	"github.com/subgov/backend/internal/application/uow"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/coupon"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/domain/upgrade"
	"gorm.io/gorm"
)

// RecorderFactory binds an event recorder to one database transaction
type RecorderFactory func(tx *gorm.DB) shared.EventRecorder

// GormTransactionScope implements uow.TransactionScope using GORM transactions.
// Every repository handed to the callback shares the transaction, and so does
// the event recorder, which makes outbox rows commit with the state change.
type GormTransactionScope struct {
	db        *gorm.DB
	recorders RecorderFactory
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB, recorders RecorderFactory) *GormTransactionScope {
	if recorders == nil {
		recorders = func(*gorm.DB) shared.EventRecorder { return discardRecorder{} }
	}
	return &GormTransactionScope{db: db, recorders: recorders}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos uow.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx, events: s.recorders(tx)})
	})
}

// gormTransactionalRepositories provides access to all repositories within a transaction
type gormTransactionalRepositories struct {
	tx     *gorm.DB
	events shared.EventRecorder
}

func (r *gormTransactionalRepositories) TenantRepo() identity.TenantRepository {
	return NewGormTenantRepository(r.tx)
}

func (r *gormTransactionalRepositories) TierRepo() billing.TierRepository {
	return NewGormTierRepository(r.tx)
}

func (r *gormTransactionalRepositories) QuotaRepo() billing.UsageQuotaRepository {
	return NewGormUsageQuotaRepository(r.tx)
}

func (r *gormTransactionalRepositories) AlertRepo() billing.UsageAlertRepository {
	return NewGormUsageAlertRepository(r.tx)
}

func (r *gormTransactionalRepositories) TransactionRepo() ledger.TransactionRepository {
	return NewGormTransactionRepository(r.tx)
}

func (r *gormTransactionalRepositories) CouponRepo() coupon.CouponRepository {
	return NewGormCouponRepository(r.tx)
}

func (r *gormTransactionalRepositories) RedemptionRepo() coupon.RedemptionRepository {
	return NewGormRedemptionRepository(r.tx)
}

func (r *gormTransactionalRepositories) UpgradeRequestRepo() upgrade.RequestRepository {
	return NewGormUpgradeRequestRepository(r.tx)
}

// Events returns the transaction-bound outbox recorder
func (r *gormTransactionalRepositories) Events() shared.EventRecorder {
	return r.events
}

type discardRecorder struct{}

func (discardRecorder) Record(context.Context, ...shared.DomainEvent) error { return nil }

// Ensure GormTransactionScope implements uow.TransactionScope
var _ uow.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements uow.TransactionalRepositories
var _ uow.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
