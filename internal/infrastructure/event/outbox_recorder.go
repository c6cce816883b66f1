package event

import (
	"context"
	"fmt"

	"github.com/subgov/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxRecorder serializes domain events into the outbox table of the
// transaction it was created for
type OutboxRecorder struct {
	repo       shared.OutboxRepository
	serializer *EventSerializer
	maxRetries int
}

// NewOutboxRecorder creates a recorder writing through repo
func NewOutboxRecorder(repo shared.OutboxRepository, serializer *EventSerializer, maxRetries int) *OutboxRecorder {
	return &OutboxRecorder{repo: repo, serializer: serializer, maxRetries: maxRetries}
}

// Record stores events as pending outbox entries
func (r *OutboxRecorder) Record(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, e := range events {
		if !r.serializer.IsRegistered(e.EventType()) {
			return fmt.Errorf("event type %s is not registered for delivery", e.EventType())
		}
		payload, err := r.serializer.Serialize(e)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", e.EventType(), err)
		}
		entry := shared.NewOutboxEntry(e, payload)
		if r.maxRetries > 0 {
			entry.MaxRetries = r.maxRetries
		}
		entries = append(entries, entry)
	}
	return r.repo.Save(ctx, entries...)
}

// NewRecorderFactory returns a function binding an OutboxRecorder to a
// transaction, for use by the unit of work
func NewRecorderFactory(serializer *EventSerializer, maxRetries int) func(tx *gorm.DB) shared.EventRecorder {
	return func(tx *gorm.DB) shared.EventRecorder {
		return NewOutboxRecorder(NewGormOutboxRepository(tx), serializer, maxRetries)
	}
}

var _ shared.EventRecorder = (*OutboxRecorder)(nil)
