package persistence

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/subgov/backend/internal/domain/shared"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// translateError maps driver errors onto the domain sentinels
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	if isUniqueViolation(err) {
		return shared.ErrAlreadyExists.Wrap(err)
	}
	return err
}

// isUniqueViolation recognises duplicate-key failures from postgres and sqlite
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// bumpVersion moves the aggregate one version past what the store holds,
// unless the domain already did
func bumpVersion(a *shared.BaseAggregateRoot) {
	if a.Version <= a.StoredVersion() {
		a.Version = a.StoredVersion() + 1
	}
}

// updateVersioned writes every column of model when the row still carries the
// expected version
func updateVersioned(db *gorm.DB, model any, id any, expected int, omit ...string) error {
	q := db.Model(model).Where("id = ? AND version = ?", id, expected).Select("*")
	if len(omit) > 0 {
		q = q.Omit(omit...)
	}
	result := q.Updates(model)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}
