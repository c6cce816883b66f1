package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/domain/shared"
	"gorm.io/datatypes"
)

// BaseModel provides common persistence fields for all models.
// It maps to the domain's BaseEntity.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// AggregateModel extends BaseModel with version for optimistic locking.
type AggregateModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}

// FromDomainAggregateRoot populates AggregateModel from domain BaseAggregateRoot
func (m *AggregateModel) FromDomainAggregateRoot(a shared.BaseAggregateRoot) {
	m.ID = a.ID
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
	m.Version = a.Version
}

// ToDomainAggregateRoot rebuilds the domain root. The result counts as stored.
func (m *AggregateModel) ToDomainAggregateRoot() shared.BaseAggregateRoot {
	a := shared.BaseAggregateRoot{
		BaseEntity: shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		Version:    m.Version,
	}
	a.MarkStored()
	return a
}

// TenantAggregateModel adds the owning tenant
type TenantAggregateModel struct {
	AggregateModel
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
}

// FromDomainTenantAggregateRoot populates TenantAggregateModel from domain TenantAggregateRoot
func (m *TenantAggregateModel) FromDomainTenantAggregateRoot(t shared.TenantAggregateRoot) {
	m.FromDomainAggregateRoot(t.BaseAggregateRoot)
	m.TenantID = t.TenantID
}

// ToDomainTenantAggregateRoot rebuilds the tenant-scoped domain root
func (m *TenantAggregateModel) ToDomainTenantAggregateRoot() shared.TenantAggregateRoot {
	return shared.TenantAggregateRoot{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		TenantID:          m.TenantID,
	}
}

func toJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

func fromJSON[T any](raw datatypes.JSON) T {
	var v T
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &v)
	}
	return v
}
