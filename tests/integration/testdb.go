// Package integration runs the governance engine against a real PostgreSQL
// started with testcontainers. Tests skip under -short.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/infrastructure/migration"
	"github.com/subgov/backend/internal/infrastructure/persistence"
	"github.com/subgov/backend/migrations"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const postgresImage = "postgres:16-alpine"

var (
	// Shared container for all tests in the package
	sharedContainer    testcontainers.Container
	sharedContainerMu  sync.Mutex
	sharedContainerDSN string
)

// TestDB is a migrated PostgreSQL database
type TestDB struct {
	DB        *gorm.DB
	SqlDB     *sql.DB
	Container testcontainers.Container
	DSN       string
	t         *testing.T
}

// NewTestDB starts a fresh container, applies the embedded migrations and
// terminates the container on cleanup
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	ctx := context.Background()
	container, dsn := startPostgres(t, ctx, "subgov_test")

	db, sqlDB := connectToDatabase(t, dsn)
	runMigrations(t, sqlDB)

	testDB := &TestDB{DB: db, SqlDB: sqlDB, Container: container, DSN: dsn, t: t}
	t.Cleanup(testDB.Close)
	return testDB
}

// NewSharedTestDB connects to a container shared by the package. Callers
// must tolerate data left by other tests or call CleanTables.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer == nil {
		container, dsn := startPostgres(t, context.Background(), "subgov_shared_test")
		sharedContainer = container
		sharedContainerDSN = dsn

		_, sqlDB := connectToDatabase(t, dsn)
		runMigrations(t, sqlDB)
		_ = sqlDB.Close()
	}

	db, sqlDB := connectToDatabase(t, sharedContainerDSN)
	testDB := &TestDB{DB: db, SqlDB: sqlDB, Container: sharedContainer, DSN: sharedContainerDSN, t: t}
	t.Cleanup(func() {
		_ = testDB.SqlDB.Close()
	})
	return testDB
}

func startPostgres(t *testing.T, ctx context.Context, dbName string) (testcontainers.Container, string) {
	t.Helper()
	container, err := tcpostgres.Run(ctx,
		postgresImage,
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")
	return container, dsn
}

// Close closes the connection and terminates a non-shared container
func (tdb *TestDB) Close() {
	if tdb.SqlDB != nil {
		_ = tdb.SqlDB.Close()
	}
	if tdb.Container != nil && tdb.Container != sharedContainer {
		if err := tdb.Container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}
}

// CleanTables truncates every table except the migration bookkeeping and
// the seeded tier catalogue
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	var tables []string
	err := tdb.DB.Raw(`
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		AND tablename NOT IN ('schema_migrations', 'tiers')
	`).Scan(&tables).Error
	require.NoError(tdb.t, err, "Failed to get table names")

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			tdb.t.Logf("Warning: Failed to truncate table %s: %v", table, err)
		}
	}
}

// Tiers loads the seeded catalogue keyed by code
func (tdb *TestDB) Tiers() map[string]*billing.Tier {
	tdb.t.Helper()
	tiers, err := persistence.NewGormTierRepository(tdb.DB).FindAll(context.Background(), true)
	require.NoError(tdb.t, err)
	out := make(map[string]*billing.Tier, len(tiers))
	for _, tier := range tiers {
		out[tier.Code] = tier
	}
	return out
}

func connectToDatabase(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(gormpostgres.Open(dsn), gormConfig)
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err, "Failed to get underlying SQL DB")

	// Enough connections for the contention tests to actually contend
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return db, sqlDB
}

// runMigrations applies the migration set embedded in the binaries
func runMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()
	m, err := migration.NewEmbedded(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")
}

// CleanupSharedContainer terminates the shared container. Call it from
// TestMain when NewSharedTestDB is used.
func CleanupSharedContainer() {
	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = sharedContainer.Terminate(ctx)
		sharedContainer = nil
		sharedContainerDSN = ""
	}
}
