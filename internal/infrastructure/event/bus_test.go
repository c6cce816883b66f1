package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// testEvent implements DomainEvent for testing
type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string, tenantID uuid.UUID) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New(), tenantID),
		Data:            "test data",
	}
}

// testHandler records what it receives
type testHandler struct {
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicWith  any
	mu         sync.Mutex
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	return h.err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestInMemoryEventBus_Routing(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	alerts := newTestHandler("UsageAlertRaised")
	reviews := newTestHandler("UpgradeRequestApproved", "UpgradeRequestRejected")
	all := newTestHandler()
	bus.Subscribe(alerts)
	bus.Subscribe(reviews)
	bus.Subscribe(all)

	tenantID := uuid.New()
	err := bus.Publish(context.Background(),
		newTestEvent("UsageAlertRaised", tenantID),
		newTestEvent("UpgradeRequestRejected", tenantID),
		newTestEvent("CouponRedeemed", tenantID),
	)
	require.NoError(t, err)

	assert.Equal(t, 1, alerts.count())
	assert.Equal(t, 1, reviews.count())
	assert.Equal(t, 3, all.count(), "handlers without event types see everything")
}

func TestInMemoryEventBus_ExplicitTypesOverrideHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("UsageAlertRaised")
	bus.Subscribe(h, "CouponRedeemed")

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("UsageAlertRaised", uuid.New())))
	assert.Equal(t, 0, h.count())

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("CouponRedeemed", uuid.New())))
	assert.Equal(t, 1, h.count())
}

func TestInMemoryEventBus_FailuresAreJoined(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	failing := newTestHandler("UsageAlertRaised")
	failing.err = errors.New("smtp down")
	panicking := newTestHandler("UsageAlertRaised")
	panicking.panicWith = "nil map"
	healthy := newTestHandler("UsageAlertRaised")
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("UsageAlertRaised", uuid.New()))
	require.Error(t, err)
	assert.ErrorIs(t, err, failing.err)
	assert.Contains(t, err.Error(), "handler panicked: nil map")
	assert.Equal(t, 1, healthy.count(), "remaining handlers still run")
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("TenantCreated")
	bus.Subscribe(h)

	_ = bus.Publish(context.Background(), newTestEvent("TenantCreated", uuid.New()))
	bus.Unsubscribe(h)
	_ = bus.Publish(context.Background(), newTestEvent("TenantCreated", uuid.New()))

	assert.Equal(t, 1, h.count())
}

func TestInMemoryEventBus_StopRefusesDeliveries(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := newTestHandler("TenantCreated")
	bus.Subscribe(h)
	ctx := context.Background()

	require.NoError(t, bus.Stop(ctx))
	assert.ErrorIs(t, bus.Publish(ctx, newTestEvent("TenantCreated", uuid.New())), ErrBusStopped)
	assert.Zero(t, h.count())

	require.NoError(t, bus.Start(ctx))
	assert.NoError(t, bus.Publish(ctx, newTestEvent("TenantCreated", uuid.New())))
	assert.Equal(t, 1, h.count())
}

func TestInMemoryEventBus_StopHonoursContext(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.inflight.Add(1)
	defer bus.inflight.Done()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bus.Stop(ctx), context.Canceled)
}
