package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact raised by an aggregate. Events reach subscribers only
// through the outbox, after the raising transaction commits.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	TenantID() uuid.UUID
}

// BaseDomainEvent is embedded by every concrete event. The JSON names are the
// outbox payload format; renaming one strands queued entries.
type BaseDomainEvent struct {
	ID            uuid.UUID `json:"id"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggID         uuid.UUID `json:"aggregate_id"`
	AggType       string    `json:"aggregate_type"`
	TenantIDValue uuid.UUID `json:"tenant_id"`
}

func (e *BaseDomainEvent) EventID() uuid.UUID     { return e.ID }
func (e *BaseDomainEvent) EventType() string      { return e.Type }
func (e *BaseDomainEvent) OccurredAt() time.Time  { return e.Timestamp }
func (e *BaseDomainEvent) AggregateID() uuid.UUID { return e.AggID }
func (e *BaseDomainEvent) AggregateType() string  { return e.AggType }
func (e *BaseDomainEvent) TenantID() uuid.UUID    { return e.TenantIDValue }

// NewBaseDomainEvent stamps a fresh event ID and the current UTC time
func NewBaseDomainEvent(eventType, aggType string, aggID, tenantID uuid.UUID) BaseDomainEvent {
	return BaseDomainEvent{
		ID:            uuid.New(),
		Type:          eventType,
		Timestamp:     time.Now().UTC(),
		AggID:         aggID,
		AggType:       aggType,
		TenantIDValue: tenantID,
	}
}

// SystemTenantID marks events that do not belong to any tenant, such as
// catalogue and coupon administration
var SystemTenantID = uuid.Nil

// IsSystemEvent reports whether e belongs to no tenant
func IsSystemEvent(e DomainEvent) bool {
	return e.TenantID() == SystemTenantID
}
