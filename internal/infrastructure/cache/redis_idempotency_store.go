package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/subgov/backend/internal/domain/shared"
)

const defaultIdempotencyPrefix = "subgov:event:processed:"

// RedisIdempotencyStore implements IdempotencyStore with SETNX keys so every
// instance of the service sees the same processed set
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisIdempotencyStore creates a store on a shared client. The client is
// not closed by Close.
func NewRedisIdempotencyStore(client *redis.Client, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = defaultIdempotencyPrefix
	}
	return &RedisIdempotencyStore{client: client, keyPrefix: keyPrefix}
}

// MarkProcessed sets the key if absent. It returns true when this call set it.
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+eventID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event as processed: %w", err)
	}
	return ok, nil
}

// IsProcessed checks if an event has already been processed
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check if event is processed: %w", err)
	}
	return n > 0, nil
}

// Close is a no-op; the shared client is closed by its owner
func (s *RedisIdempotencyStore) Close() error {
	return nil
}

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
