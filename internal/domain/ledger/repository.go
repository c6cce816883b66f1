package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
)

// TransactionFilter narrows ledger listings
type TransactionFilter struct {
	shared.Filter
	TenantID *uuid.UUID
	Status   *TransactionStatus
	Type     *TransactionType
	From     *time.Time
	To       *time.Time
	Search   string
}

// TransactionRepository persists billing transactions
type TransactionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*BillingTransaction, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*BillingTransaction, error)
	FindByNumber(ctx context.Context, number string) (*BillingTransaction, error)
	FindByUpgradeRequest(ctx context.Context, requestID uuid.UUID) (*BillingTransaction, error)
	FindAll(ctx context.Context, filter TransactionFilter) ([]*BillingTransaction, int64, error)
	Create(ctx context.Context, tx *BillingTransaction) error
	// Update saves the transaction if nobody else wrote it since it was loaded,
	// otherwise it fails with shared.ErrConcurrencyConflict
	Update(ctx context.Context, tx *BillingTransaction) error
	// CountPendingForUpgrades counts pending transactions whose request is already closed
	CountPendingForUpgrades(ctx context.Context) (int64, error)
}
