package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/infrastructure/config"
)

func TestNewDatabase_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		DBName: filepath.Join(t.TempDir(), "subgov.db"),
	}

	db, err := NewDatabase(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, AutoMigrate(db.DB))
	assert.True(t, db.DB.Migrator().HasTable("usage_quotas"))
	assert.True(t, db.DB.Migrator().HasTable("outbox_events"))

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections, "sqlite runs on one connection")
	assert.NoError(t, db.Ping(context.Background()))
}

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(&config.DatabaseConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}
