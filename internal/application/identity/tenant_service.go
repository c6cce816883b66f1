package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/application/uow"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// QuotaSyncer re-derives quota limits from a tenant's tier inside a unit of work
type QuotaSyncer interface {
	SyncWithTierInScope(ctx context.Context, repos uow.TransactionalRepositories, tenant *identity.Tenant) ([]*billing.UsageQuota, error)
}

// TenantService handles tenant provisioning and admin edits
type TenantService struct {
	scope      uow.TransactionScope
	tenantRepo identity.TenantRepository
	syncer     QuotaSyncer
	logger     *zap.Logger
	now        func() time.Time
}

// NewTenantService creates a new tenant service
func NewTenantService(
	scope uow.TransactionScope,
	tenantRepo identity.TenantRepository,
	syncer QuotaSyncer,
	logger *zap.Logger,
) *TenantService {
	return &TenantService{
		scope:      scope,
		tenantRepo: tenantRepo,
		syncer:     syncer,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the time source
func (s *TenantService) SetClock(now func() time.Time) {
	s.now = now
}

// Provision creates a tenant and all of its quota rows in one transaction
func (s *TenantService) Provision(ctx context.Context, input ProvisionTenantInput) (*TenantDTO, error) {
	s.logger.Info("Provisioning tenant",
		zap.String("code", input.Code),
		zap.String("tier", input.TierCode))

	if input.TierCode == "" {
		input.TierCode = billing.TierFree
	}
	now := s.now()
	var tenant *identity.Tenant
	err := s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		exists, err := repos.TenantRepo().ExistsByCode(ctx, input.Code)
		if err != nil {
			return err
		}
		if exists {
			return shared.NewDomainError("ALREADY_EXISTS", "Tenant code already exists").WithDetail("code", input.Code)
		}
		tier, err := findTier(ctx, repos.TierRepo(), input.TierCode)
		if err != nil {
			return err
		}
		if !tier.IsActive {
			return shared.NewValidationError("TIER_NOT_AVAILABLE", "Tier is not available: "+tier.Code)
		}

		if input.TrialDays > 0 {
			tenant, err = identity.NewTrialTenant(input.Code, input.Name, tier, input.TrialDays, now)
		} else {
			tenant, err = identity.NewTenant(input.Code, input.Name, tier, now)
		}
		if err != nil {
			return err
		}
		if input.ContactEmail != "" {
			if err := tenant.Update(tenant.Name, input.ContactEmail, now); err != nil {
				return err
			}
		}
		tenant.Notes = input.Notes

		if err := repos.TenantRepo().Create(ctx, tenant); err != nil {
			return err
		}
		if _, err := s.syncer.SyncWithTierInScope(ctx, repos, tenant); err != nil {
			return err
		}
		return uow.RecordEvents(ctx, repos.Events(), tenant)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Tenant provisioned",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("code", tenant.Code))
	return toTenantDTO(tenant), nil
}

// GetByID retrieves a tenant by ID
func (s *TenantService) GetByID(ctx context.Context, id uuid.UUID) (*TenantDTO, error) {
	tenant, err := s.tenantRepo.FindByID(ctx, id)
	if err != nil {
		return nil, tenantLookupError(err)
	}
	return toTenantDTO(tenant), nil
}

// List pages through tenants
func (s *TenantService) List(ctx context.Context, filter identity.TenantFilter) (*TenantListResult, error) {
	filter.Filter = filter.Filter.Normalize()
	tenants, total, err := s.tenantRepo.FindAll(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list tenants", zap.Error(err))
		return nil, err
	}
	items := make([]TenantDTO, len(tenants))
	for i, t := range tenants {
		items[i] = *toTenantDTO(t)
	}
	res := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &res, nil
}

// Update edits descriptive fields
func (s *TenantService) Update(ctx context.Context, id uuid.UUID, input UpdateTenantInput) (*TenantDTO, error) {
	return s.mutate(ctx, id, false, func(_ uow.TransactionalRepositories, t *identity.Tenant, now time.Time) error {
		if err := t.Update(input.Name, input.ContactEmail, now); err != nil {
			return err
		}
		if input.Notes != nil {
			t.Notes = *input.Notes
		}
		return nil
	})
}

// ChangeTier moves the tenant to another tier and re-syncs quotas atomically
func (s *TenantService) ChangeTier(ctx context.Context, id uuid.UUID, input ChangeTierInput) (*TenantDTO, error) {
	var tenant *identity.Tenant
	err := s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		var err error
		tenant, err = s.ChangeTierInScope(ctx, repos, id, input.TierCode, input.BillingPeriod)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toTenantDTO(tenant), nil
}

// ChangeTierInScope updates the tenant's tier and status, then syncs quotas,
// all inside the caller's unit of work
func (s *TenantService) ChangeTierInScope(ctx context.Context, repos uow.TransactionalRepositories, tenantID uuid.UUID, tierCode string, period billing.BillingPeriod) (*identity.Tenant, error) {
	tenant, err := repos.TenantRepo().FindByIDForUpdate(ctx, tenantID)
	if err != nil {
		return nil, tenantLookupError(err)
	}
	tier, err := findTier(ctx, repos.TierRepo(), tierCode)
	if err != nil {
		return nil, err
	}
	if period == "" {
		period = tenant.BillingPeriod
	}
	oldTier := tenant.TierCode
	if err := tenant.ChangeTier(tier, period, s.now()); err != nil {
		return nil, err
	}
	if err := repos.TenantRepo().Update(ctx, tenant); err != nil {
		return nil, err
	}
	if _, err := s.syncer.SyncWithTierInScope(ctx, repos, tenant); err != nil {
		return nil, err
	}
	if err := uow.RecordEvents(ctx, repos.Events(), tenant); err != nil {
		return nil, err
	}
	s.logger.Info("Tenant tier changed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("from", oldTier),
		zap.String("to", tier.Code))
	return tenant, nil
}

// ExtendPeriodInScope grants bonus days inside the caller's unit of work
func (s *TenantService) ExtendPeriodInScope(ctx context.Context, repos uow.TransactionalRepositories, tenantID uuid.UUID, days int) (*identity.Tenant, error) {
	tenant, err := repos.TenantRepo().FindByIDForUpdate(ctx, tenantID)
	if err != nil {
		return nil, tenantLookupError(err)
	}
	tenant.ExtendPeriod(days, s.now())
	if err := repos.TenantRepo().Update(ctx, tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

// SetStatus moves the tenant to another subscription status
func (s *TenantService) SetStatus(ctx context.Context, id uuid.UUID, status identity.TenantStatus) (*TenantDTO, error) {
	return s.mutate(ctx, id, false, func(_ uow.TransactionalRepositories, t *identity.Tenant, now time.Time) error {
		return t.ChangeStatus(status, now)
	})
}

// SetLimitOverride records an admin override and applies it to the quota
func (s *TenantService) SetLimitOverride(ctx context.Context, id uuid.UUID, input SetLimitOverrideInput) (*TenantDTO, error) {
	return s.mutate(ctx, id, true, func(repos uow.TransactionalRepositories, t *identity.Tenant, now time.Time) error {
		if err := t.SetLimitOverride(input.MetricType, input.Value, input.Reason, input.SetBy, now); err != nil {
			return err
		}
		tier, err := findTier(ctx, repos.TierRepo(), t.TierCode)
		if err != nil {
			return err
		}
		t.ApplyTierLimits(tier)
		return nil
	})
}

// ClearLimitOverride drops an override so the tier default applies again
func (s *TenantService) ClearLimitOverride(ctx context.Context, id uuid.UUID, metric billing.MetricType) (*TenantDTO, error) {
	if !metric.IsValid() {
		return nil, shared.NewValidationError("INVALID_METRIC_TYPE", "Unknown metric type: "+string(metric))
	}
	return s.mutate(ctx, id, true, func(repos uow.TransactionalRepositories, t *identity.Tenant, now time.Time) error {
		if !t.ClearLimitOverride(metric, now) {
			return shared.NewNotFoundError("OVERRIDE_NOT_FOUND", "No override is recorded for "+string(metric))
		}
		tier, err := findTier(ctx, repos.TierRepo(), t.TierCode)
		if err != nil {
			return err
		}
		t.ApplyTierLimits(tier)
		return nil
	})
}

// ExpireTrials moves every trial tenant whose trial has ended to expired
func (s *TenantService) ExpireTrials(ctx context.Context) (int, error) {
	status := identity.TenantStatusTrial
	filter := identity.TenantFilter{Filter: shared.Filter{Page: 1, PageSize: 200}, Status: &status}
	tenants, _, err := s.tenantRepo.FindAll(ctx, filter)
	if err != nil {
		return 0, err
	}
	now := s.now()
	expired := 0
	for _, t := range tenants {
		if !t.IsTrialExpired(now) {
			continue
		}
		_, err := s.mutate(ctx, t.ID, false, func(_ uow.TransactionalRepositories, locked *identity.Tenant, now time.Time) error {
			if !locked.IsTrialExpired(now) {
				return nil
			}
			return locked.ChangeStatus(identity.TenantStatusExpired, now)
		})
		if err != nil {
			s.logger.Warn("Failed to expire trial", zap.String("tenant_id", t.ID.String()), zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *TenantService) mutate(ctx context.Context, id uuid.UUID, sync bool, fn func(repos uow.TransactionalRepositories, t *identity.Tenant, now time.Time) error) (*TenantDTO, error) {
	var tenant *identity.Tenant
	err := s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		var err error
		tenant, err = repos.TenantRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return tenantLookupError(err)
		}
		if err := fn(repos, tenant, s.now()); err != nil {
			return err
		}
		if err := repos.TenantRepo().Update(ctx, tenant); err != nil {
			return err
		}
		if sync {
			if _, err := s.syncer.SyncWithTierInScope(ctx, repos, tenant); err != nil {
				return err
			}
		}
		return uow.RecordEvents(ctx, repos.Events(), tenant)
	})
	if err != nil {
		return nil, err
	}
	return toTenantDTO(tenant), nil
}

func tenantLookupError(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewNotFoundError("TENANT_NOT_FOUND", "Tenant not found")
	}
	return err
}

func findTier(ctx context.Context, repo billing.TierRepository, code string) (*billing.Tier, error) {
	tier, err := repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("TIER_NOT_FOUND", "Tier not found: "+code)
		}
		return nil, err
	}
	return tier, nil
}
