// Package testutil provides common test utilities for the subscription backend.
// It contains helpers for setting up an in-memory store, seeding the tier
// catalogue and tenants, and performing common test assertions.
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/infrastructure/persistence"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Now is the fixed instant most tests run at
var Now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// Clock is a settable time source for services under test
type Clock struct {
	t time.Time
}

// NewClock starts a clock at t
func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	return c.t
}

// Set moves the clock to t
func (c *Clock) Set(t time.Time) {
	c.t = t
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

// NewTestDB opens an in-memory sqlite database with the full schema. A single
// connection keeps every query on the same in-memory database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "Failed to open sqlite")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, persistence.AutoMigrate(db), "Failed to migrate schema")
	return db
}

// MockDB wraps a GORM database with sqlmock for testing.
type MockDB struct {
	DB    *gorm.DB
	Mock  sqlmock.Sqlmock
	SqlDB *sql.DB
}

// NewMockDB creates a postgres-dialect mock database, closed on cleanup.
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create sqlmock")
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err, "Failed to open GORM connection")

	return &MockDB{DB: gormDB, Mock: mock, SqlDB: mockDB}
}

// ExpectationsWereMet verifies that all expectations were met.
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	require.NoError(t, m.Mock.ExpectationsWereMet(), "Unmet database expectations")
}

// SeedDefaultTiers stores the default catalogue and returns it keyed by code
func SeedDefaultTiers(t *testing.T, db *gorm.DB) map[string]*billing.Tier {
	t.Helper()
	repo := persistence.NewGormTierRepository(db)
	out := make(map[string]*billing.Tier)
	for _, tier := range billing.DefaultTiers() {
		require.NoError(t, repo.Save(context.Background(), tier))
		out[tier.Code] = tier
	}
	return out
}

// SeedTier stores a tier with the given monthly price and limits. Yearly is
// ten times monthly.
func SeedTier(t *testing.T, db *gorm.DB, code string, monthly int64, limits map[billing.MetricType]int64) *billing.Tier {
	t.Helper()
	tier, err := billing.NewTier(code, code+" plan", monthly, monthly*10, "USD", limits, 0)
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormTierRepository(db).Save(context.Background(), tier))
	return tier
}

// SeedTenant stores an active tenant on tier together with one quota per
// metric, the way provisioning leaves it
func SeedTenant(t *testing.T, db *gorm.DB, code string, tier *billing.Tier, at time.Time) *identity.Tenant {
	t.Helper()
	ctx := context.Background()

	tenant, err := identity.NewTenant(code, "Tenant "+code, tier, at)
	require.NoError(t, err)
	require.NoError(t, persistence.NewGormTenantRepository(db).Create(ctx, tenant))

	quotas := persistence.NewGormUsageQuotaRepository(db)
	for _, metric := range billing.AllMetricTypes() {
		limit, _ := tenant.EffectiveLimit(tier, metric)
		q, err := billing.NewUsageQuota(tenant.ID, metric, limit, at)
		require.NoError(t, err)
		require.NoError(t, quotas.Create(ctx, q))
	}
	tenant.ClearDomainEvents()
	return tenant
}

// SetUsage overwrites a quota's counter directly in the store
func SetUsage(t *testing.T, db *gorm.DB, tenantID uuid.UUID, metric billing.MetricType, current int64) {
	t.Helper()
	res := db.Exec("UPDATE usage_quotas SET current_value = ? WHERE tenant_id = ? AND metric_type = ?",
		current, tenantID, string(metric))
	require.NoError(t, res.Error)
	require.Equal(t, int64(1), res.RowsAffected, "quota row not found")
}

// SetLimit overwrites a quota's limit directly in the store
func SetLimit(t *testing.T, db *gorm.DB, tenantID uuid.UUID, metric billing.MetricType, limit int64) {
	t.Helper()
	res := db.Exec("UPDATE usage_quotas SET limit_value = ? WHERE tenant_id = ? AND metric_type = ?",
		limit, tenantID, string(metric))
	require.NoError(t, res.Error)
	require.Equal(t, int64(1), res.RowsAffected, "quota row not found")
}

// NewTestUUID generates a deterministic UUID for testing.
func NewTestUUID(seed string) uuid.UUID {
	namespace := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	return uuid.NewSHA1(namespace, []byte(seed))
}

// TestUserID returns a standard user ID for tests.
func TestUserID() uuid.UUID {
	return NewTestUUID("test-user")
}

// UserRef returns a pointer to a fresh copy of id
func UserRef(id uuid.UUID) *uuid.UUID {
	return &id
}

// ContextWithTimeout creates a context with a timeout for tests.
func ContextWithTimeout(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), timeout)
}

// AssertEventually retries a condition until it passes or times out.
func AssertEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...any) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}

	t.Fatalf("Condition not met within %v: %v", timeout, msgAndArgs)
}
