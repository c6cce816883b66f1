package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries the identity and timestamps every table row has.
// Timestamps come from the caller's clock so tests and period math agree.
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Touch bumps UpdatedAt
func (e *BaseEntity) Touch(now time.Time) {
	e.UpdatedAt = now
}

// NewBaseEntityAt creates an entity with a fresh ID, created and updated at now
func NewBaseEntityAt(now time.Time) BaseEntity {
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}
