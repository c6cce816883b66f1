package uow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/shared"
)

type sliceRecorder struct {
	events []shared.DomainEvent
	err    error
}

func (r *sliceRecorder) Record(_ context.Context, events ...shared.DomainEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, events...)
	return nil
}

type testAggregate struct {
	shared.BaseAggregateRoot
}

func newTestAggregate(eventTypes ...string) *testAggregate {
	a := &testAggregate{BaseAggregateRoot: shared.NewBaseAggregateRootAt(time.Now())}
	for _, et := range eventTypes {
		ev := shared.NewBaseDomainEvent(et, "Test", a.ID, uuid.New())
		a.AddDomainEvent(&ev)
	}
	return a
}

func TestRecordEvents_DrainsAggregates(t *testing.T) {
	rec := &sliceRecorder{}
	first := newTestAggregate("UsageAlertRaised", "UsageQuotaReset")
	second := newTestAggregate("CouponRedeemed")

	require.NoError(t, RecordEvents(context.Background(), rec, first, nil, second))

	require.Len(t, rec.events, 3)
	assert.Equal(t, "CouponRedeemed", rec.events[2].EventType())
	assert.Empty(t, first.GetDomainEvents())
	assert.Empty(t, second.GetDomainEvents())
}

func TestRecordEvents_KeepsEventsWhenRecorderFails(t *testing.T) {
	rec := &sliceRecorder{err: errors.New("outbox insert failed")}
	agg := newTestAggregate("TenantCreated")

	assert.Error(t, RecordEvents(context.Background(), rec, agg))
	assert.Len(t, agg.GetDomainEvents(), 1)
}

// domain aggregates satisfy EventSource through the embedded root
var _ EventSource = (*identity.Tenant)(nil)
