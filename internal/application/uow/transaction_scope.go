// Package uow defines the unit of work shared by the governance services.
// Every compound state change (ledger write, tenant update, quota sync, outbox
// insert) runs inside one TransactionScope so it commits or rolls back as a whole.
package uow

import (
	"context"

	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/coupon"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/ledger"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/domain/upgrade"
)

// TransactionScope provides transactional access to repositories.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides repositories bound to one transaction.
type TransactionalRepositories interface {
	TenantRepo() identity.TenantRepository
	TierRepo() billing.TierRepository
	QuotaRepo() billing.UsageQuotaRepository
	AlertRepo() billing.UsageAlertRepository
	TransactionRepo() ledger.TransactionRepository
	CouponRepo() coupon.CouponRepository
	RedemptionRepo() coupon.RedemptionRepository
	UpgradeRequestRepo() upgrade.RequestRepository
	// Events returns a recorder that writes domain events to the outbox in the
	// same transaction
	Events() shared.EventRecorder
}

// EventSource is an aggregate holding events raised since it was loaded
type EventSource interface {
	GetDomainEvents() []shared.DomainEvent
	ClearDomainEvents()
}

// RecordEvents drains the pending events of every aggregate into the recorder
func RecordEvents(ctx context.Context, rec shared.EventRecorder, aggregates ...EventSource) error {
	var events []shared.DomainEvent
	for _, agg := range aggregates {
		if agg == nil {
			continue
		}
		events = append(events, agg.GetDomainEvents()...)
	}
	if len(events) == 0 {
		return nil
	}
	if err := rec.Record(ctx, events...); err != nil {
		return err
	}
	for _, agg := range aggregates {
		if agg != nil {
			agg.ClearDomainEvents()
		}
	}
	return nil
}
