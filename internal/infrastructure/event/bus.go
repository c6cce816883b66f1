package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/subgov/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrBusStopped is returned by Publish after Stop. The outbox treats it like
// any delivery failure and retries later.
var ErrBusStopped = errors.New("event bus stopped")

// InMemoryEventBus delivers events synchronously to in-process handlers. It
// is fed by the outbox processor, which owns durability and retries.
type InMemoryEventBus struct {
	handlers *handlerTable
	logger   *zap.Logger
	stopped  atomic.Bool
	inflight sync.WaitGroup
}

func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		handlers: newHandlerTable(),
		logger:   logger.Named("eventbus"),
	}
}

// Publish runs every matching handler for each event. A failing or panicking
// handler does not stop the others; all failures come back joined.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if b.stopped.Load() {
		return ErrBusStopped
	}
	b.inflight.Add(1)
	defer b.inflight.Done()

	var errs []error
	for _, event := range events {
		for _, h := range b.handlers.lookup(event.EventType()) {
			if err := b.call(ctx, h, event); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", event.EventType(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers handler for eventTypes, or for the handler's own
// EventTypes when none are given
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.handlers.add(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.handlers.remove(handler)
}

// Start reopens a stopped bus
func (b *InMemoryEventBus) Start(context.Context) error {
	b.stopped.Store(false)
	return nil
}

// Stop refuses new deliveries and waits for in-flight ones until ctx ends
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.stopped.Store(true)

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs one handler, turning a panic into an error
func (b *InMemoryEventBus) call(ctx context.Context, h shared.EventHandler, event shared.DomainEvent) (err error) {
	log := b.logger.With(
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	if err = h.Handle(ctx, event); err != nil {
		log.Error("handler failed", zap.Error(err))
	}
	return err
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
