package persistence

import (
	"context"
	"fmt"

	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// schemaModels lists every table the governance engine owns
func schemaModels() []any {
	return []any{
		&models.TierModel{},
		&models.TenantModel{},
		&models.UsageQuotaModel{},
		&models.UsageAlertModel{},
		&models.BillingTransactionModel{},
		&models.CouponModel{},
		&models.CouponRedemptionModel{},
		&models.UpgradeRequestModel{},
		&models.OutboxEntryModel{},
	}
}

// constraintIndexes are the uniqueness rules gorm tags cannot express. The
// same statements live in the SQL migrations.
var constraintIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_usage_quotas_tenant_metric ON usage_quotas (tenant_id, metric_type)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_usage_alerts_open ON usage_alerts (tenant_id, metric_type, level) WHERE acknowledged = false`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_upgrade_requests_open ON upgrade_requests (tenant_id) WHERE status IN ('pending', 'payment_uploaded', 'under_review')`,
}

// AutoMigrate creates or updates the schema from the models. It backs the
// sqlite development mode and the test suites; postgres deployments run the
// versioned migrations instead.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(schemaModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range constraintIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// SeedTiers inserts the default catalogue, leaving tiers that already exist
// untouched
func SeedTiers(ctx context.Context, db *gorm.DB) error {
	for _, tier := range billing.DefaultTiers() {
		err := db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
			Create(models.TierModelFromDomain(tier)).Error
		if err != nil {
			return fmt.Errorf("seed tier %s: %w", tier.Code, err)
		}
	}
	return nil
}
