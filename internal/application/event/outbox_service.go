package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// OutboxService exposes the event outbox to administrators
type OutboxService struct {
	repo   shared.OutboxRepository
	logger *zap.Logger
}

// NewOutboxService creates a new outbox service
func NewOutboxService(repo shared.OutboxRepository, logger *zap.Logger) *OutboxService {
	return &OutboxService{repo: repo, logger: logger}
}

// OutboxEntryDTO represents an outbox entry
type OutboxEntryDTO struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// OutboxListResult is a page of outbox entries
type OutboxListResult = shared.Paginated[OutboxEntryDTO]

// OutboxStatsDTO counts entries per status
type OutboxStatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

// ListDead pages through entries that exhausted their retries
func (s *OutboxService) ListDead(ctx context.Context, filter shared.Filter) (*OutboxListResult, error) {
	filter = filter.Normalize()
	entries, total, err := s.repo.FindDead(ctx, filter.Page, filter.PageSize)
	if err != nil {
		s.logger.Error("Failed to find dead letter entries", zap.Error(err))
		return nil, err
	}
	items := make([]OutboxEntryDTO, len(entries))
	for i, entry := range entries {
		items[i] = toOutboxEntryDTO(entry)
	}
	res := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &res, nil
}

// Get returns a single entry
func (s *OutboxService) Get(ctx context.Context, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RetryDead puts a dead entry back in the queue
func (s *OutboxService) RetryDead(ctx context.Context, id uuid.UUID) (*OutboxEntryDTO, error) {
	entry, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entry.Requeue(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info("Dead letter entry reset for retry",
		zap.String("id", id.String()),
		zap.String("event_type", entry.EventType))
	dto := toOutboxEntryDTO(entry)
	return &dto, nil
}

// RetryAllDead requeues every dead entry and returns how many were reset
func (s *OutboxService) RetryAllDead(ctx context.Context) (int64, error) {
	const pageSize = 100
	var count int64
	for {
		// reset entries drop out of the dead set, so the first page is always fresh
		entries, _, err := s.repo.FindDead(ctx, 1, pageSize)
		if err != nil {
			return count, err
		}
		reset := 0
		for _, entry := range entries {
			if err := entry.Requeue(); err != nil {
				continue
			}
			if err := s.repo.Update(ctx, entry); err != nil {
				s.logger.Error("Failed to update outbox entry", zap.String("id", entry.ID.String()), zap.Error(err))
				continue
			}
			reset++
		}
		count += int64(reset)
		if len(entries) < pageSize || reset == 0 {
			break
		}
	}
	s.logger.Info("Retried dead letter entries", zap.Int64("count", count))
	return count, nil
}

// Stats counts entries per status
func (s *OutboxService) Stats(ctx context.Context) (*OutboxStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return &OutboxStatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
		Total:      total,
	}, nil
}

func (s *OutboxService) find(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if entry == nil {
		return nil, shared.NewNotFoundError("OUTBOX_ENTRY_NOT_FOUND", "Outbox entry not found")
	}
	return entry, nil
}

func toOutboxEntryDTO(entry *shared.OutboxEntry) OutboxEntryDTO {
	return OutboxEntryDTO{
		ID:            entry.ID,
		TenantID:      entry.TenantID,
		EventID:       entry.EventID,
		EventType:     entry.EventType,
		AggregateID:   entry.AggregateID,
		AggregateType: entry.AggregateType,
		Status:        string(entry.Status),
		RetryCount:    entry.RetryCount,
		MaxRetries:    entry.MaxRetries,
		LastError:     entry.LastError,
		NextRetryAt:   entry.NextRetryAt,
		ProcessedAt:   entry.ProcessedAt,
		CreatedAt:     entry.CreatedAt,
		UpdatedAt:     entry.UpdatedAt,
	}
}
