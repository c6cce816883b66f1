package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/identity"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// setupTestDB opens an in-memory sqlite database with the full schema
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

// newMockDB opens a postgres-dialect gorm handle backed by sqlmock
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return gormDB, mock
}

func testTier(t *testing.T, code string, monthly int64, limits map[billing.MetricType]int64) *billing.Tier {
	t.Helper()
	tier, err := billing.NewTier(code, code+" plan", monthly, monthly*10, "USD", limits, 0)
	require.NoError(t, err)
	return tier
}

func seedTier(t *testing.T, db *gorm.DB, code string, monthly int64) *billing.Tier {
	t.Helper()
	tier := testTier(t, code, monthly, map[billing.MetricType]int64{
		billing.MetricAPICalls:     1000,
		billing.MetricStorageBytes: 1 << 30,
		billing.MetricActiveUsers:  5,
		billing.MetricBranches:     1,
	})
	require.NoError(t, NewGormTierRepository(db).Save(context.Background(), tier))
	return tier
}

func seedTenant(t *testing.T, db *gorm.DB, code string, tier *billing.Tier) *identity.Tenant {
	t.Helper()
	tenant, err := identity.NewTenant(code, "Tenant "+code, tier, testNow)
	require.NoError(t, err)
	require.NoError(t, NewGormTenantRepository(db).Create(context.Background(), tenant))
	return tenant
}

func seedQuota(t *testing.T, db *gorm.DB, tenantID uuid.UUID, metric billing.MetricType, limit int64) *billing.UsageQuota {
	t.Helper()
	q, err := billing.NewUsageQuota(tenantID, metric, limit, testNow)
	require.NoError(t, err)
	require.NoError(t, NewGormUsageQuotaRepository(db).Create(context.Background(), q))
	return q
}
