package event

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OutboxProcessorConfig tunes delivery polling and the purge of sent entries
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxProcessorConfig polls every 5s and keeps sent entries a week
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// OutboxProcessor moves committed outbox entries onto the event bus. Entries
// are claimed before delivery, so several server instances can poll the same
// table.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	eventBus   shared.EventBus
	serializer *EventSerializer
	config     OutboxProcessorConfig
	logger     *zap.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewOutboxProcessor creates a processor; Start launches its loops
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	eventBus shared.EventBus,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	return &OutboxProcessor{
		repo:       repo,
		eventBus:   eventBus,
		serializer: serializer,
		config:     config,
		logger:     logger.Named("outbox"),
	}
}

// Start launches the delivery loop and, when enabled, the cleanup loop
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	p.group, ctx = errgroup.WithContext(ctx)

	p.group.Go(func() error {
		every(ctx, p.config.PollInterval, func() { p.RunOnce(ctx) })
		return nil
	})
	if p.config.CleanupEnabled {
		p.group.Go(func() error {
			every(ctx, p.config.CleanupInterval, func() { p.purgeSent(ctx) })
			return nil
		})
	}
	return nil
}

// Stop cancels the loops and waits for an in-flight batch to finish
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()
	select {
	case err := <-done:
		p.logger.Info("outbox processor stopped")
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// every runs fn on each tick until ctx ends
func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// RunOnce claims pending entries plus failed entries whose backoff elapsed and
// delivers them. It returns how many entries this call claimed.
func (p *OutboxProcessor) RunOnce(ctx context.Context) int {
	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find pending entries", zap.Error(err))
		return 0
	}
	due, err := p.repo.FindRetryable(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find retryable entries", zap.Error(err))
	}

	candidates := slices.Concat(pending, due)
	if len(candidates) == 0 {
		return 0
	}
	ids := make([]uuid.UUID, len(candidates))
	for i, e := range candidates {
		ids[i] = e.ID
	}
	// another instance may win some of these
	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("failed to claim entries", zap.Error(err))
		return 0
	}
	for _, entry := range claimed {
		p.deliver(ctx, entry)
	}
	return len(claimed)
}

func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry) {
	log := p.logger.With(
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
	)

	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err == nil {
		err = p.eventBus.Publish(ctx, event)
	}
	if err != nil {
		entry.MarkFailed(err.Error())
		if entry.IsDead() {
			log.Warn("outbox entry dead-lettered",
				zap.String("aggregate_type", entry.AggregateType),
				zap.String("aggregate_id", entry.AggregateID.String()),
				zap.String("tenant_id", entry.TenantID.String()),
				zap.Int("retry_count", entry.RetryCount),
				zap.Error(err),
			)
		} else {
			log.Error("outbox delivery failed", zap.Int("retry_count", entry.RetryCount), zap.Error(err))
		}
	} else {
		entry.MarkSent()
	}

	if err := p.repo.Update(ctx, entry); err != nil {
		log.Error("failed to save outbox entry state", zap.String("status", string(entry.Status)), zap.Error(err))
		return
	}
	log.Debug("outbox entry settled", zap.String("status", string(entry.Status)))
}

func (p *OutboxProcessor) purgeSent(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to purge sent outbox entries", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("purged sent outbox entries", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
}
