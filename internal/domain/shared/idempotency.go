package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed event IDs so redelivered outbox
// entries are handled once.
type IdempotencyStore interface {
	// MarkProcessed returns true if the event was newly marked, false if seen before
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	Close() error
}

// IdempotencyConfig holds configuration for idempotent event handling
type IdempotencyConfig struct {
	TTL     time.Duration
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
