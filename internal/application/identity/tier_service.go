package identity

import (
	"context"
	"strings"
	"time"

	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// TierService exposes the tier catalogue
type TierService struct {
	tierRepo billing.TierRepository
	logger   *zap.Logger
}

// NewTierService creates a new tier service
func NewTierService(tierRepo billing.TierRepository, logger *zap.Logger) *TierService {
	return &TierService{tierRepo: tierRepo, logger: logger}
}

// List returns the catalogue ordered by sort order
func (s *TierService) List(ctx context.Context, includeInactive bool) ([]TierDTO, error) {
	tiers, err := s.tierRepo.FindAll(ctx, includeInactive)
	if err != nil {
		return nil, err
	}
	out := make([]TierDTO, len(tiers))
	for i, t := range tiers {
		out[i] = ToTierDTO(t)
	}
	return out, nil
}

// Get returns one tier
func (s *TierService) Get(ctx context.Context, code string) (*TierDTO, error) {
	tier, err := findTier(ctx, s.tierRepo, strings.ToLower(code))
	if err != nil {
		return nil, err
	}
	dto := ToTierDTO(tier)
	return &dto, nil
}

// Update edits prices, limits or availability. Existing tenants keep their
// quotas until an admin syncs them.
func (s *TierService) Update(ctx context.Context, code string, input UpdateTierInput) (*TierDTO, error) {
	tier, err := findTier(ctx, s.tierRepo, strings.ToLower(code))
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, shared.NewValidationError("INVALID_TIER_NAME", "Tier name cannot be empty")
		}
		tier.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		tier.Description = *input.Description
	}
	if input.MonthlyPrice != nil {
		if *input.MonthlyPrice < 0 {
			return nil, shared.NewValidationError("INVALID_TIER_PRICE", "Tier prices cannot be negative")
		}
		tier.MonthlyPrice = *input.MonthlyPrice
	}
	if input.YearlyPrice != nil {
		if *input.YearlyPrice < 0 {
			return nil, shared.NewValidationError("INVALID_TIER_PRICE", "Tier prices cannot be negative")
		}
		tier.YearlyPrice = *input.YearlyPrice
	}
	for metric, limit := range input.Limits {
		if err := tier.SetLimit(metric, limit); err != nil {
			return nil, err
		}
	}
	if input.IsActive != nil {
		tier.IsActive = *input.IsActive
	}
	tier.UpdatedAt = time.Now()

	if err := s.tierRepo.Save(ctx, tier); err != nil {
		return nil, err
	}
	s.logger.Info("Tier updated", zap.String("tier", tier.Code))
	dto := ToTierDTO(tier)
	return &dto, nil
}
