package event

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subgov/backend/internal/domain/shared"
	"go.uber.org/zap"
)

type memOutboxRepo struct {
	entries map[uuid.UUID]*shared.OutboxEntry
}

func newMemOutboxRepo() *memOutboxRepo {
	return &memOutboxRepo{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
}

func (r *memOutboxRepo) add(status shared.OutboxStatus) *shared.OutboxEntry {
	e := &shared.OutboxEntry{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		EventID:       uuid.New(),
		EventType:     "UsageAlertRaised",
		AggregateID:   uuid.New(),
		AggregateType: "UsageAlert",
		Status:        status,
		MaxRetries:    shared.DefaultMaxRetries,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if status == shared.OutboxStatusDead {
		e.RetryCount = shared.DefaultMaxRetries
		e.LastError = "handler failed"
	}
	r.entries[e.ID] = e
	return e
}

func (r *memOutboxRepo) Save(_ context.Context, entries ...*shared.OutboxEntry) error {
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *memOutboxRepo) FindPending(context.Context, int) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *memOutboxRepo) FindRetryable(context.Context, time.Time, int) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *memOutboxRepo) FindDead(_ context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	var dead []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusDead {
			dead = append(dead, e)
		}
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i].ID.String() < dead[j].ID.String() })
	total := int64(len(dead))
	start := (page - 1) * pageSize
	if start >= len(dead) {
		return nil, total, nil
	}
	end := min(start+pageSize, len(dead))
	return dead[start:end], total, nil
}

func (r *memOutboxRepo) FindByID(_ context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	if e, ok := r.entries[id]; ok {
		return e, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memOutboxRepo) MarkProcessing(context.Context, []uuid.UUID) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *memOutboxRepo) Update(_ context.Context, entry *shared.OutboxEntry) error {
	r.entries[entry.ID] = entry
	return nil
}

func (r *memOutboxRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *memOutboxRepo) CountByStatus(context.Context) (map[shared.OutboxStatus]int64, error) {
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func TestOutboxService_ListDead(t *testing.T) {
	repo := newMemOutboxRepo()
	svc := NewOutboxService(repo, zap.NewNop())
	for range 5 {
		repo.add(shared.OutboxStatusDead)
	}
	repo.add(shared.OutboxStatusPending)

	res, err := svc.ListDead(context.Background(), shared.Filter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Total)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, 3, res.TotalPages)
	for _, e := range res.Items {
		assert.Equal(t, "DEAD", e.Status)
	}
}

func TestOutboxService_RetryDead(t *testing.T) {
	repo := newMemOutboxRepo()
	svc := NewOutboxService(repo, zap.NewNop())

	t.Run("dead entry is requeued", func(t *testing.T) {
		dead := repo.add(shared.OutboxStatusDead)
		res, err := svc.RetryDead(context.Background(), dead.ID)
		require.NoError(t, err)
		assert.Equal(t, "PENDING", res.Status)
		assert.Zero(t, res.RetryCount)
		assert.Empty(t, res.LastError)
	})

	t.Run("unknown entry", func(t *testing.T) {
		_, err := svc.RetryDead(context.Background(), uuid.New())
		assert.True(t, shared.IsKind(err, shared.KindNotFound))
	})

	t.Run("pending entry cannot be retried", func(t *testing.T) {
		pending := repo.add(shared.OutboxStatusPending)
		_, err := svc.RetryDead(context.Background(), pending.ID)
		assert.True(t, shared.IsKind(err, shared.KindInvalidTransition))
	})
}

func TestOutboxService_RetryAllDead(t *testing.T) {
	repo := newMemOutboxRepo()
	svc := NewOutboxService(repo, zap.NewNop())
	for range 3 {
		repo.add(shared.OutboxStatusDead)
	}
	pending := repo.add(shared.OutboxStatusPending)

	n, err := svc.RetryAllDead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	for id, e := range repo.entries {
		if id != pending.ID {
			assert.Equal(t, shared.OutboxStatusPending, e.Status)
		}
	}
}

func TestOutboxService_Stats(t *testing.T) {
	repo := newMemOutboxRepo()
	svc := NewOutboxService(repo, zap.NewNop())
	for _, s := range []shared.OutboxStatus{
		shared.OutboxStatusPending, shared.OutboxStatusPending, shared.OutboxStatusProcessing,
		shared.OutboxStatusSent, shared.OutboxStatusFailed, shared.OutboxStatusDead,
	} {
		repo.add(s)
	}

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.Processing)
	assert.Equal(t, int64(1), stats.Sent)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, int64(6), stats.Total)
}
