package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the delivery state of an outbox entry.
//
//	PENDING -> PROCESSING -> SENT
//	                      -> FAILED -> PROCESSING ...
//	                      -> DEAD   -> PENDING (operator requeue)
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

const (
	DefaultMaxRetries  = 5
	DefaultBaseBackoff = time.Second
	maxBackoff         = 5 * time.Minute
)

// OutboxEntry is a serialized domain event waiting for delivery. It is
// written in the transaction that changed the aggregate.
type OutboxEntry struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry wraps the serialized form of event
func NewOutboxEntry(event DomainEvent, payload []byte) *OutboxEntry {
	now := time.Now()
	return &OutboxEntry{
		ID:            uuid.New(),
		TenantID:      event.TenantID(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarkSent records a successful delivery
func (e *OutboxEntry) MarkSent() {
	now := time.Now()
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// MarkFailed records a failed delivery. The entry is rescheduled with
// RetryBackoff until MaxRetries attempts have failed, then dead-lettered.
func (e *OutboxEntry) MarkFailed(reason string) {
	now := time.Now()
	e.RetryCount++
	e.LastError = reason
	e.UpdatedAt = now

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	e.Status = OutboxStatusFailed
	next := now.Add(RetryBackoff(e.RetryCount))
	e.NextRetryAt = &next
}

// Requeue moves a dead letter back to pending with a fresh retry budget
func (e *OutboxEntry) Requeue() error {
	if e.Status != OutboxStatusDead {
		return NewInvalidTransitionError("outbox entry", string(e.Status), "retry")
	}
	e.Status = OutboxStatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	e.UpdatedAt = time.Now()
	return nil
}

func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// RetryBackoff returns the wait after the nth failure: 1s, 2s, 4s and so on,
// capped at five minutes
func RetryBackoff(failures int) time.Duration {
	failures = max(failures, 1)
	if failures > 20 {
		return maxBackoff
	}
	return min(DefaultBaseBackoff<<(failures-1), maxBackoff)
}

// OutboxRepository persists outbox entries
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	FindRetryable(ctx context.Context, before time.Time, limit int) ([]*OutboxEntry, error)
	FindDead(ctx context.Context, page, pageSize int) ([]*OutboxEntry, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	// MarkProcessing claims entries still PENDING or FAILED and returns the
	// ones this caller won
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
