package cache

import (
	"context"
	"sync"
	"time"

	"github.com/subgov/backend/internal/domain/shared"
)

const idempotencySweepInterval = 5 * time.Minute

// InMemoryIdempotencyStore keeps processed event IDs in process memory. It is
// meant for single-instance deployments, dev mode and tests.
type InMemoryIdempotencyStore struct {
	seen      *ttlMap[struct{}]
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryIdempotencyStore creates the store and starts its sweeper
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		seen: newTTLMap[struct{}](),
		stop: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop()
	return s
}

// MarkProcessed returns true if the event was newly marked, false if seen before
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	return s.seen.setIfAbsent(eventID, struct{}{}, ttl), nil
}

// IsProcessed checks if an event has already been processed
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	_, ok := s.seen.get(eventID)
	return ok, nil
}

// Close stops the sweeper. Safe to call more than once.
func (s *InMemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
	return nil
}

// Size returns the number of stored IDs, lapsed ones included until swept
func (s *InMemoryIdempotencyStore) Size() int {
	return s.seen.len()
}

func (s *InMemoryIdempotencyStore) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(idempotencySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.seen.sweep()
		}
	}
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
