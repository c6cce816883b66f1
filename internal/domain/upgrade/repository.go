package upgrade

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
)

// RequestFilter narrows upgrade request listings
type RequestFilter struct {
	shared.Filter
	TenantID *uuid.UUID
	Statuses []RequestStatus
}

// RequestRepository persists upgrade requests
type RequestRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*UpgradeRequest, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*UpgradeRequest, error)
	FindByNumber(ctx context.Context, number string) (*UpgradeRequest, error)
	FindAll(ctx context.Context, filter RequestFilter) ([]*UpgradeRequest, int64, error)
	// FindOpenByTenant returns the tenant's in-flight request, or shared.ErrNotFound
	FindOpenByTenant(ctx context.Context, tenantID uuid.UUID) (*UpgradeRequest, error)
	// FindExpiredIDs returns requests past their deadline that can still expire
	FindExpiredIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	Create(ctx context.Context, r *UpgradeRequest) error
	// Update saves the request if nobody else wrote it since it was loaded,
	// otherwise it fails with shared.ErrConcurrencyConflict
	Update(ctx context.Context, r *UpgradeRequest) error
}
