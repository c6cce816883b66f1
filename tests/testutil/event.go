package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/subgov/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// EventSink is a bus subscriber that keeps every event it receives
type EventSink struct {
	types []string

	mu       sync.Mutex
	received []shared.DomainEvent
}

// NewEventSink subscribes to eventTypes, or to everything when none are given
func NewEventSink(eventTypes ...string) *EventSink {
	return &EventSink{types: eventTypes}
}

func (s *EventSink) EventTypes() []string { return s.types }

func (s *EventSink) Handle(_ context.Context, event shared.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, event)
	return nil
}

// Handled returns a copy of the received events in delivery order
func (s *EventSink) Handled() []shared.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.received)
}

func (s *EventSink) HandledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

// RecordingRecorder stands in for the outbox recorder. Events recorded in a
// transaction that later rolls back stay recorded, so assert on committed
// state through the store as well.
type RecordingRecorder struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func NewRecordingRecorder() *RecordingRecorder {
	return &RecordingRecorder{}
}

func (r *RecordingRecorder) Record(_ context.Context, events ...shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

// Factory binds the recorder to every transaction of a GormTransactionScope
func (r *RecordingRecorder) Factory() func(*gorm.DB) shared.EventRecorder {
	return func(*gorm.DB) shared.EventRecorder { return r }
}

// Types returns the recorded event types in order
func (r *RecordingRecorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType()
	}
	return out
}

// Count returns how many events of eventType were recorded
func (r *RecordingRecorder) Count(eventType string) int {
	n := 0
	for _, t := range r.Types() {
		if t == eventType {
			n++
		}
	}
	return n
}
