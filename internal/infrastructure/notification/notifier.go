// Package notification delivers tenant notifications composed from domain events.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/subgov/backend/internal/application/event"
	"github.com/subgov/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// DefaultChannelPrefix prefixes the per-tenant pub/sub channel
const DefaultChannelPrefix = "subgov:notifications:"

// LogNotifier writes notifications to the application log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

// Notify implements event.Notifier
func (n *LogNotifier) Notify(ctx context.Context, msg event.Notification) error {
	logger.With(ctx, n.logger).Info("Tenant notification",
		zap.String("tenant_id", msg.TenantID.String()),
		zap.String("event_id", msg.EventID.String()),
		zap.String("event_type", msg.EventType),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}

// RedisNotifier publishes notifications on a per-tenant channel so connected
// dashboards can pick them up
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

// NewRedisNotifier creates a pub/sub notifier
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client, prefix: DefaultChannelPrefix}
}

// Channel returns the channel a tenant's notifications go to
func (n *RedisNotifier) Channel(msg event.Notification) string {
	return n.prefix + msg.TenantID.String()
}

// Notify implements event.Notifier
func (n *RedisNotifier) Notify(ctx context.Context, msg event.Notification) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.Channel(msg), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Fanout delivers to every notifier and joins their errors. One failing sink
// does not stop the others.
type Fanout []event.Notifier

// Notify implements event.Notifier
func (f Fanout) Notify(ctx context.Context, msg event.Notification) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ event.Notifier = (*LogNotifier)(nil)
	_ event.Notifier = (*RedisNotifier)(nil)
	_ event.Notifier = Fanout(nil)
)
