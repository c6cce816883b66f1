package shared

import "context"

// EventHandler reacts to delivered domain events. An empty EventTypes
// subscribes to every event.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	EventTypes() []string
}

// EventBus fans delivered events out to handlers. Only the outbox processor
// publishes; services record events through an EventRecorder instead.
type EventBus interface {
	Publish(ctx context.Context, events ...DomainEvent) error
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// EventRecorder stores events alongside the business write that produced
// them. An implementation is bound to one database transaction.
type EventRecorder interface {
	Record(ctx context.Context, events ...DomainEvent) error
}
