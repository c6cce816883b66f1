package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseAggregateRoot adds an optimistic-lock version and pending events to an
// entity. Events stay on the aggregate until the unit of work records them.
type BaseAggregateRoot struct {
	BaseEntity
	Version      int
	domainEvents []DomainEvent
	// storedVersion is the version last read from or written to the store.
	// Several mutations in one unit of work may bump Version more than once.
	storedVersion int
}

func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// StoredVersion returns the version the store holds for this aggregate
func (a *BaseAggregateRoot) StoredVersion() int {
	return a.storedVersion
}

// MarkStored records that the store now holds the current Version.
// Repositories call it after loading or saving.
func (a *BaseAggregateRoot) MarkStored() {
	a.storedVersion = a.Version
}

func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns the events raised since the last clear
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// NewBaseAggregateRootAt starts a new aggregate at version 1
func NewBaseAggregateRootAt(now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntityAt(now), Version: 1}
}

// TenantAggregateRoot is an aggregate owned by one tenant
type TenantAggregateRoot struct {
	BaseAggregateRoot
	TenantID uuid.UUID
}

func NewTenantAggregateRoot(tenantID uuid.UUID, now time.Time) TenantAggregateRoot {
	return TenantAggregateRoot{BaseAggregateRoot: NewBaseAggregateRootAt(now), TenantID: tenantID}
}

// BelongsTo reports whether the aggregate is owned by tenantID
func (t *TenantAggregateRoot) BelongsTo(tenantID uuid.UUID) bool {
	return t.TenantID == tenantID
}
