package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
)

// TenantFilter narrows tenant listings
type TenantFilter struct {
	shared.Filter
	Status   *TenantStatus
	TierCode string
	Search   string
}

// TenantRepository defines the interface for tenant persistence
type TenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	// FindByIDForUpdate loads the tenant and holds its row lock for the
	// surrounding transaction
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Tenant, error)
	FindByCode(ctx context.Context, code string) (*Tenant, error)
	FindAll(ctx context.Context, filter TenantFilter) ([]*Tenant, int64, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, tenant *Tenant) error
	// Update persists changes with an optimistic version check; a stale
	// version fails with shared.ErrConcurrencyConflict
	Update(ctx context.Context, tenant *Tenant) error
	CountByStatus(ctx context.Context) (map[TenantStatus]int64, error)
	CountByTier(ctx context.Context) (map[string]int64, error)
}
