package cache

import (
	"github.com/redis/go-redis/v9"
	"github.com/subgov/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// NewIdempotencyStore picks the Redis store when a client is available and the
// in-memory store otherwise. The in-memory store does not share state between
// instances, so a multi-instance deployment without Redis may handle a
// redelivered event twice.
func NewIdempotencyStore(client *redis.Client, logger *zap.Logger) shared.IdempotencyStore {
	if client != nil {
		logger.Info("using Redis idempotency store")
		return NewRedisIdempotencyStore(client, "")
	}
	logger.Warn("Redis not configured, using in-memory idempotency store")
	return NewInMemoryIdempotencyStore()
}
