package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/domain/shared"
)

func sampleEvent(eventType string) shared.BaseDomainEvent {
	return shared.NewBaseDomainEvent(eventType, "Tenant", uuid.New(), uuid.New())
}

func TestEventSink(t *testing.T) {
	sink := NewEventSink("TenantCreated")
	first, second := sampleEvent("TenantCreated"), sampleEvent("TenantCreated")

	require.NoError(t, sink.Handle(context.Background(), &first))
	require.NoError(t, sink.Handle(context.Background(), &second))

	assert.Equal(t, []string{"TenantCreated"}, sink.EventTypes())
	assert.Equal(t, 2, sink.HandledCount())
	handled := sink.Handled()
	assert.Equal(t, first.EventID(), handled[0].EventID())

	handled[0] = nil
	assert.NotNil(t, sink.Handled()[0], "Handled returns a copy")
}

func TestRecordingRecorder(t *testing.T) {
	rec := NewRecordingRecorder()
	a1, b, a2 := sampleEvent("A"), sampleEvent("B"), sampleEvent("A")

	require.NoError(t, rec.Record(context.Background(), &a1, &b, &a2))

	assert.Equal(t, []string{"A", "B", "A"}, rec.Types())
	assert.Equal(t, 2, rec.Count("A"))
	assert.Zero(t, rec.Count("C"))
	assert.Same(t, rec, rec.Factory()(nil))
}
