package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/domain/shared"
	"go.uber.org/zap"
)

type processorFixture struct {
	repo       *GormOutboxRepository
	bus        *InMemoryEventBus
	serializer *EventSerializer
	processor  *OutboxProcessor
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	logger := zap.NewNop()
	f := &processorFixture{
		repo:       NewGormOutboxRepository(setupOutboxDB(t)),
		bus:        NewInMemoryEventBus(logger),
		serializer: NewEventSerializer(),
	}
	f.serializer.Register("UsageAlertRaised", &testEvent{})
	f.processor = NewOutboxProcessor(f.repo, f.bus, f.serializer, OutboxProcessorConfig{
		BatchSize:       10,
		PollInterval:    20 * time.Millisecond,
		CleanupInterval: time.Hour,
	}, logger)
	return f
}

func (f *processorFixture) record(t *testing.T, maxRetries int) *shared.OutboxEntry {
	t.Helper()
	event := newTestEvent("UsageAlertRaised", uuid.New())
	payload, err := f.serializer.Serialize(event)
	require.NoError(t, err)
	entry := shared.NewOutboxEntry(event, payload)
	entry.MaxRetries = maxRetries
	require.NoError(t, f.repo.Save(context.Background(), entry))
	return entry
}

func TestOutboxProcessor_DeliversPending(t *testing.T) {
	f := newProcessorFixture(t)
	handler := newTestHandler("UsageAlertRaised")
	f.bus.Subscribe(handler)
	entry := f.record(t, 5)

	assert.Equal(t, 1, f.processor.RunOnce(context.Background()))
	assert.Equal(t, 1, handler.count())

	stored, err := f.repo.FindByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusSent, stored.Status)

	assert.Zero(t, f.processor.RunOnce(context.Background()), "sent entries are not redelivered")
}

func TestOutboxProcessor_HandlerFailureSchedulesRetry(t *testing.T) {
	f := newProcessorFixture(t)
	handler := newTestHandler("UsageAlertRaised")
	handler.err = errors.New("webhook timeout")
	f.bus.Subscribe(handler)
	entry := f.record(t, 5)

	f.processor.RunOnce(context.Background())

	stored, err := f.repo.FindByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Contains(t, stored.LastError, "webhook timeout")
	require.NotNil(t, stored.NextRetryAt)
	assert.True(t, stored.NextRetryAt.After(time.Now()))
}

func TestOutboxProcessor_ExhaustedRetriesBecomeDead(t *testing.T) {
	f := newProcessorFixture(t)
	handler := newTestHandler("UsageAlertRaised")
	handler.panicWith = "boom"
	f.bus.Subscribe(handler)
	entry := f.record(t, 1)

	f.processor.RunOnce(context.Background())

	stored, err := f.repo.FindByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDead())
	assert.Contains(t, stored.LastError, "handler panicked")
}

func TestOutboxProcessor_UnknownEventType(t *testing.T) {
	f := newProcessorFixture(t)
	entry := shared.NewOutboxEntry(newTestEvent("Unregistered", uuid.New()), []byte(`{}`))
	require.NoError(t, f.repo.Save(context.Background(), entry))

	f.processor.RunOnce(context.Background())

	stored, err := f.repo.FindByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusFailed, stored.Status)
	assert.Contains(t, stored.LastError, "unknown event type")
}

func TestOutboxProcessor_StartStop(t *testing.T) {
	f := newProcessorFixture(t)
	handler := newTestHandler("UsageAlertRaised")
	f.bus.Subscribe(handler)
	f.record(t, 5)

	require.NoError(t, f.processor.Start(context.Background()))
	assert.Eventually(t, func() bool { return handler.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.processor.Stop(stopCtx))
}

func TestDefaultOutboxProcessorConfig(t *testing.T) {
	config := DefaultOutboxProcessorConfig()

	assert.Equal(t, 100, config.BatchSize)
	assert.Equal(t, 5*time.Second, config.PollInterval)
	assert.True(t, config.CleanupEnabled)
	assert.Equal(t, 7*24*time.Hour, config.CleanupRetention)
	assert.Equal(t, time.Hour, config.CleanupInterval)
}

func TestOutboxProcessor_PurgeSent(t *testing.T) {
	f := newProcessorFixture(t)
	f.bus.Subscribe(newTestHandler("UsageAlertRaised"))
	sent := f.record(t, 5)
	require.Equal(t, 1, f.processor.RunOnce(context.Background()))
	pending := f.record(t, 5)

	// a negative retention puts the cutoff in the future
	f.processor.config.CleanupRetention = -time.Hour
	f.processor.purgeSent(context.Background())

	_, err := f.repo.FindByID(context.Background(), sent.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	stored, err := f.repo.FindByID(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusPending, stored.Status)
}

func TestOutboxProcessor_StopWithoutStart(t *testing.T) {
	f := newProcessorFixture(t)

	assert.NoError(t, f.processor.Stop(context.Background()))
}
