package event

import (
	"context"
	"fmt"

	"github.com/subgov/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DeliveryOutcome labels what the idempotency guard did with one delivery
type DeliveryOutcome string

const (
	OutcomeHandled   DeliveryOutcome = "handled"
	OutcomeDuplicate DeliveryOutcome = "duplicate"
	OutcomeFailed    DeliveryOutcome = "failed"
)

// DeliveryCounter counts guarded deliveries by event type and outcome. A nil
// counter records nothing.
type DeliveryCounter struct {
	counter metric.Int64Counter
}

// NewDeliveryCounter registers subgov.event.deliveries on meter
func NewDeliveryCounter(meter metric.Meter) (*DeliveryCounter, error) {
	c, err := meter.Int64Counter("subgov.event.deliveries",
		metric.WithDescription("Event deliveries seen by idempotent handlers"))
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery counter: %w", err)
	}
	return &DeliveryCounter{counter: c}, nil
}

func (d *DeliveryCounter) record(ctx context.Context, eventType string, outcome DeliveryOutcome) {
	if d == nil {
		return
	}
	d.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", string(outcome)),
	))
}

// IdempotentHandler wraps an EventHandler so a redelivered outbox entry is
// handled once per event ID
type IdempotentHandler struct {
	next       shared.EventHandler
	store      shared.IdempotencyStore
	config     shared.IdempotencyConfig
	logger     *zap.Logger
	deliveries *DeliveryCounter
}

// IdempotentHandlerOption configures an IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig overrides the TTL and the on/off switch
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithDeliveryCounter reports outcomes to a counter shared between handlers
func WithDeliveryCounter(deliveries *DeliveryCounter) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.deliveries = deliveries
	}
}

// NewIdempotentHandler wraps next
func NewIdempotentHandler(
	next shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		next:   next,
		store:  store,
		config: shared.DefaultIdempotencyConfig(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the event types of the wrapped handler
func (h *IdempotentHandler) EventTypes() []string {
	return h.next.EventTypes()
}

// Handle passes the event on unless its ID was already marked. When the store
// is unreachable the event is handled anyway; notifications tolerate a repeat
// better than a loss.
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.next.Handle(ctx, event)
	}

	log := h.logger.With(
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
	)

	fresh, err := h.store.MarkProcessed(ctx, event.EventID().String(), h.config.TTL)
	switch {
	case err != nil:
		log.Warn("idempotency store unavailable, handling anyway", zap.Error(err))
	case !fresh:
		h.deliveries.record(ctx, event.EventType(), OutcomeDuplicate)
		log.Debug("duplicate delivery skipped")
		return nil
	}

	if err := h.next.Handle(ctx, event); err != nil {
		h.deliveries.record(ctx, event.EventType(), OutcomeFailed)
		log.Error("event handler failed", zap.Error(err))
		// the key stays until TTL so the outbox backoff governs retries
		return err
	}
	h.deliveries.record(ctx, event.EventType(), OutcomeHandled)
	return nil
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)

// WrapHandlersWithIdempotency wraps every handler with the same store and options
func WrapHandlersWithIdempotency(
	handlers []shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) []shared.EventHandler {
	wrapped := make([]shared.EventHandler, len(handlers))
	for i, h := range handlers {
		wrapped[i] = NewIdempotentHandler(h, store, logger, opts...)
	}
	return wrapped
}
