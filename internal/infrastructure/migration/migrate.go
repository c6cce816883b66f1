// Package migration applies the versioned SQL schema with golang-migrate.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// migrationsTable keeps this schema's bookkeeping apart from other tools
const migrationsTable = "subgov_schema_migrations"

// Status is the schema version currently recorded in the database
type Status struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

// Migrator runs migrations against a postgres database
type Migrator struct {
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// NewEmbedded reads migrations from fsys, typically migrations.FS
func NewEmbedded(db *sql.DB, fsys fs.FS, logger *zap.Logger) (*Migrator, error) {
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return newWithSource(db, "iofs", src, logger)
}

// NewFromDir reads migrations from a directory on disk
func NewFromDir(db *sql.DB, dir string, logger *zap.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return &Migrator{migrate: m, logger: logger}, nil
}

func newWithSource(db *sql.DB, name string, src source.Driver, logger *zap.Logger) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}
	m, err := migrate.NewWithInstance(name, src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return &Migrator{migrate: m, logger: logger}, nil
}

// Up applies every pending migration
func (m *Migrator) Up() error {
	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("Schema is up to date")
			return nil
		}
		return fmt.Errorf("migrate up: %w", err)
	}
	return m.logVersion("Migrations applied")
}

// Down rolls back every migration
func (m *Migrator) Down() error {
	if err := m.migrate.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	m.logger.Info("Migrations rolled back")
	return nil
}

// Steps applies n migrations, rolling back when n is negative
func (m *Migrator) Steps(n int) error {
	if err := m.migrate.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %d steps: %w", n, err)
	}
	return m.logVersion("Migration steps applied")
}

// GoTo migrates up or down to version
func (m *Migrator) GoTo(version uint) error {
	if err := m.migrate.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate to %d: %w", version, err)
	}
	return m.logVersion("Migrated to version")
}

// Status reports the applied version; zero means nothing has run yet
func (m *Migrator) Status() (Status, error) {
	version, dirty, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return Status{}, nil
		}
		return Status{}, fmt.Errorf("read migration version: %w", err)
	}
	return Status{Version: version, Dirty: dirty}, nil
}

// Force records version without running anything. It clears a dirty flag
// after a failed migration has been repaired by hand.
func (m *Migrator) Force(version int) error {
	m.logger.Warn("Forcing migration version", zap.Int("version", version))
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Close releases the source and database handles
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	return errors.Join(srcErr, dbErr)
}

func (m *Migrator) logVersion(msg string) error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	m.logger.Info(msg, zap.Uint("version", st.Version), zap.Bool("dirty", st.Dirty))
	return nil
}
