package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
	"gorm.io/datatypes"
)

// OutboxEntryModel is a row of outbox_events. Rows are written in the same
// transaction as the aggregate change that raised the event.
type OutboxEntryModel struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID           `gorm:"type:uuid;not null;index:idx_outbox_tenant_status,priority:1"`
	EventID       uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_outbox_events_event_id"`
	EventType     string              `gorm:"type:varchar(255);not null"`
	AggregateID   uuid.UUID           `gorm:"type:uuid;not null"`
	AggregateType string              `gorm:"type:varchar(255);not null"`
	Payload       datatypes.JSON      `gorm:"type:jsonb;not null"`
	Status        shared.OutboxStatus `gorm:"type:varchar(20);not null;default:PENDING;index:idx_outbox_tenant_status,priority:2;index:idx_outbox_status_created,priority:1"`
	RetryCount    int                 `gorm:"not null;default:0"`
	MaxRetries    int                 `gorm:"not null;default:5"`
	LastError     string              `gorm:"type:text"`
	NextRetryAt   *time.Time          `gorm:"index:idx_outbox_next_retry"`
	ProcessedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null;index:idx_outbox_status_created,priority:2"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (OutboxEntryModel) TableName() string {
	return "outbox_events"
}

// ToDomain converts the row to a domain OutboxEntry
func (m *OutboxEntryModel) ToDomain() *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:            m.ID,
		TenantID:      m.TenantID,
		EventID:       m.EventID,
		EventType:     m.EventType,
		AggregateID:   m.AggregateID,
		AggregateType: m.AggregateType,
		Payload:       []byte(m.Payload),
		Status:        m.Status,
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		LastError:     m.LastError,
		NextRetryAt:   m.NextRetryAt,
		ProcessedAt:   m.ProcessedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// OutboxEntryModelFromDomain builds the row for e
func OutboxEntryModelFromDomain(e *shared.OutboxEntry) *OutboxEntryModel {
	return &OutboxEntryModel{
		ID:            e.ID,
		TenantID:      e.TenantID,
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Payload:       datatypes.JSON(e.Payload),
		Status:        e.Status,
		RetryCount:    e.RetryCount,
		MaxRetries:    e.MaxRetries,
		LastError:     e.LastError,
		NextRetryAt:   e.NextRetryAt,
		ProcessedAt:   e.ProcessedAt,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}
