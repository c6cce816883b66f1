package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/infrastructure/persistence"
	"github.com/subgov/backend/tests/testutil"
	"go.uber.org/zap"
)

// MockTierRepository is a mock implementation of billing.TierRepository
type MockTierRepository struct {
	mock.Mock
}

func (m *MockTierRepository) FindByCode(ctx context.Context, code string) (*billing.Tier, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Tier), args.Error(1)
}

func (m *MockTierRepository) FindAll(ctx context.Context, includeInactive bool) ([]*billing.Tier, error) {
	args := m.Called(ctx, includeInactive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*billing.Tier), args.Error(1)
}

func (m *MockTierRepository) Save(ctx context.Context, tier *billing.Tier) error {
	args := m.Called(ctx, tier)
	return args.Error(0)
}

func basicTier() *billing.Tier {
	return billing.DefaultTiers()[1]
}

func TestTierService_List(t *testing.T) {
	db := testutil.NewTestDB(t)
	tiers := testutil.SeedDefaultTiers(t, db)
	repo := persistence.NewGormTierRepository(db)
	svc := NewTierService(repo, zap.NewNop())
	ctx := context.Background()

	premium := tiers[billing.TierPremium]
	premium.IsActive = false
	require.NoError(t, repo.Save(ctx, premium))

	active, err := svc.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, billing.TierFree, active[0].Code)
	assert.Equal(t, billing.TierEnterprise, active[2].Code)
	assert.Equal(t, billing.UnlimitedValue, active[2].Limits[string(billing.MetricAPICalls)])

	all, err := svc.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestTierService_Get(t *testing.T) {
	repo := new(MockTierRepository)
	svc := NewTierService(repo, zap.NewNop())
	ctx := context.Background()

	repo.On("FindByCode", ctx, "basic").Return(basicTier(), nil)
	repo.On("FindByCode", ctx, "gold").Return(nil, shared.ErrNotFound)

	dto, err := svc.Get(ctx, "BASIC")
	require.NoError(t, err)
	assert.Equal(t, "Basic", dto.Name)
	assert.Equal(t, int64(2_900), dto.MonthlyPrice)
	assert.Equal(t, int64(3), dto.Limits[string(billing.MetricBranches)])

	_, err = svc.Get(ctx, "gold")
	assert.True(t, shared.IsKind(err, shared.KindNotFound))
	repo.AssertExpectations(t)
}

func TestTierService_Update(t *testing.T) {
	repo := new(MockTierRepository)
	svc := NewTierService(repo, zap.NewNop())
	ctx := context.Background()

	repo.On("FindByCode", ctx, "basic").Return(basicTier(), nil)
	repo.On("Save", ctx, mock.AnythingOfType("*billing.Tier")).Return(nil)

	price := int64(3_900)
	inactive := false
	dto, err := svc.Update(ctx, "basic", UpdateTierInput{
		MonthlyPrice: &price,
		Limits:       map[billing.MetricType]int64{billing.MetricActiveUsers: 15},
		IsActive:     &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3_900), dto.MonthlyPrice)
	assert.Equal(t, int64(29_000), dto.YearlyPrice)
	assert.Equal(t, int64(15), dto.Limits[string(billing.MetricActiveUsers)])
	assert.False(t, dto.IsActive)

	saved := repo.Calls[1].Arguments.Get(1).(*billing.Tier)
	assert.Equal(t, int64(15), saved.LimitFor(billing.MetricActiveUsers))
	repo.AssertExpectations(t)
}

func TestTierService_Update_Validation(t *testing.T) {
	ctx := context.Background()
	negative := int64(-1)
	blank := "  "

	tests := []struct {
		name  string
		input UpdateTierInput
	}{
		{"negative monthly price", UpdateTierInput{MonthlyPrice: &negative}},
		{"negative yearly price", UpdateTierInput{YearlyPrice: &negative}},
		{"blank name", UpdateTierInput{Name: &blank}},
		{"limit below unlimited", UpdateTierInput{Limits: map[billing.MetricType]int64{billing.MetricBranches: -2}}},
		{"unknown metric", UpdateTierInput{Limits: map[billing.MetricType]int64{"cpu": 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockTierRepository)
			repo.On("FindByCode", ctx, "basic").Return(basicTier(), nil)
			svc := NewTierService(repo, zap.NewNop())

			_, err := svc.Update(ctx, "basic", tt.input)
			assert.True(t, shared.IsKind(err, shared.KindValidation))
			repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		})
	}
}

func TestTierService_Update_SaveError(t *testing.T) {
	repo := new(MockTierRepository)
	svc := NewTierService(repo, zap.NewNop())
	ctx := context.Background()
	boom := errors.New("disk full")

	repo.On("FindByCode", ctx, "basic").Return(basicTier(), nil)
	repo.On("Save", ctx, mock.Anything).Return(boom)

	_, err := svc.Update(ctx, "basic", UpdateTierInput{})
	assert.ErrorIs(t, err, boom)
}
