package handler

import (
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	appbilling "github.com/subgov/backend/internal/application/billing"
	appcoupon "github.com/subgov/backend/internal/application/coupon"
	appevent "github.com/subgov/backend/internal/application/event"
	appidentity "github.com/subgov/backend/internal/application/identity"
	appledger "github.com/subgov/backend/internal/application/ledger"
	reportapp "github.com/subgov/backend/internal/application/report"
	appupgrade "github.com/subgov/backend/internal/application/upgrade"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/infrastructure/config"
	"github.com/subgov/backend/internal/infrastructure/event"
	"github.com/subgov/backend/internal/infrastructure/persistence"
	"github.com/subgov/backend/internal/interfaces/http/middleware"
	"github.com/subgov/backend/tests/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var validatorOnce sync.Once

type seqNumbers struct {
	mu sync.Mutex
	n  int
}

func (s *seqNumbers) Next(prefix string, _ time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%04d", prefix, s.n)
}

// apiFixture serves the handlers over a seeded in-memory database. Requests
// authenticate through the dev headers.
type apiFixture struct {
	db       *gorm.DB
	engine   *gin.Engine
	clock    *testutil.Clock
	events   *testutil.RecordingRecorder
	tiers    map[string]*billing.Tier
	tenant   *identity.Tenant
	metering *appbilling.MeteringService
	coupons  *appcoupon.CouponService
	ledger   *appledger.LedgerService
	upgrades *appupgrade.UpgradeService
}

func newAPIFixture(t *testing.T) *apiFixture {
	return newAPIFixtureWith(t, appbilling.DefaultMeteringConfig())
}

func newAPIFixtureWith(t *testing.T, meteringCfg appbilling.MeteringConfig) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validatorOnce.Do(func() {
		require.NoError(t, middleware.SetupValidator())
	})

	db := testutil.NewTestDB(t)
	tiers := testutil.SeedDefaultTiers(t, db)
	tenant := testutil.SeedTenant(t, db, "ACME", tiers[billing.TierBasic], testutil.Now)
	events := testutil.NewRecordingRecorder()
	scope := persistence.NewGormTransactionScope(db, events.Factory())
	clock := testutil.NewClock(testutil.Now)
	numbers := &seqNumbers{}
	log := zap.NewNop()

	tenantRepo := persistence.NewGormTenantRepository(db)
	tierRepo := persistence.NewGormTierRepository(db)
	quotaRepo := persistence.NewGormUsageQuotaRepository(db)
	txRepo := persistence.NewGormTransactionRepository(db)
	reportRepo := persistence.NewGormReportRepository(db)

	metering := appbilling.NewMeteringService(scope, quotaRepo, persistence.NewGormUsageAlertRepository(db), log, meteringCfg)
	metering.SetClock(clock.Now)
	tenants := appidentity.NewTenantService(scope, tenantRepo, metering, log)
	tenants.SetClock(clock.Now)
	coupons := appcoupon.NewCouponService(scope,
		persistence.NewGormCouponRepository(db),
		persistence.NewGormRedemptionRepository(db),
		log)
	coupons.SetClock(clock.Now)
	ledgerSvc := appledger.NewLedgerService(scope, txRepo, coupons, tenants, numbers, appledger.LedgerConfig{}, log)
	ledgerSvc.SetClock(clock.Now)
	upgrades := appupgrade.NewUpgradeService(scope,
		persistence.NewGormUpgradeRequestRepository(db), tenantRepo, tierRepo,
		ledgerSvc, coupons, numbers, appupgrade.DefaultUpgradeConfig(), log)
	upgrades.SetClock(clock.Now)
	reports := reportapp.NewReportService(reportRepo, reportRepo, tenantRepo, tierRepo, quotaRepo, txRepo)
	reports.SetClock(clock.Now)
	outbox := appevent.NewOutboxService(event.NewGormOutboxRepository(db), log)

	usage := NewUsageHandler(metering, log)
	upgradeH := NewUpgradeHandler(upgrades, log)
	ledgerH := NewLedgerHandler(ledgerSvc, log)
	couponH := NewCouponHandler(coupons, log)
	tenantH := NewTenantHandler(tenants, log)
	tierH := NewTierHandler(appidentity.NewTierService(tierRepo, log), log)
	reportH := NewReportHandler(reports, log)
	outboxH := NewOutboxHandler(outbox, log)
	meta := NewMetaHandler(config.RuntimeSnapshot{DevMode: true, Version: "test"}, meteringCfg, log)

	engine := gin.New()
	engine.Use(middleware.RequestID())
	api := engine.Group("/api/v1")
	api.GET("/meta/enums", meta.Enums)
	api.GET("/meta/runtime", meta.Runtime)

	authed := api.Group("")
	authed.Use(middleware.Authenticate(middleware.AuthConfig{
		Runtime: config.RuntimeSnapshot{DevMode: true},
		Logger:  log,
	}))
	authed.GET("/tiers", tierH.List)
	authed.GET("/tiers/:code", tierH.Get)

	own := authed.Group("")
	own.Use(middleware.RequireTenant())
	own.GET("/tenant", tenantH.Current)
	own.GET("/usage/quotas", usage.ListQuotas)
	own.GET("/usage/quotas/:metric/check", usage.CheckLimit)
	own.POST("/usage/record", usage.RecordUsage)
	own.GET("/usage/alerts", usage.ListAlerts)
	own.POST("/usage/alerts/:id/acknowledge", usage.AcknowledgeAlert)
	own.POST("/upgrade-requests/preview", upgradeH.Preview)
	own.POST("/upgrade-requests", upgradeH.Create)
	own.GET("/upgrade-requests", upgradeH.List)
	own.GET("/upgrade-requests/:id", upgradeH.Get)
	own.POST("/upgrade-requests/:id/proof", upgradeH.UploadProof)
	own.POST("/upgrade-requests/:id/cancel", upgradeH.Cancel)
	own.GET("/billing/transactions", ledgerH.ListOwn)
	own.GET("/billing/transactions/:id", ledgerH.GetOwn)
	own.POST("/coupons/validate", couponH.Validate)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/usage/tenant/:id", usage.AdminListQuotas)
	admin.POST("/usage/tenant/:id/reset/:metric", usage.ResetMetric)
	admin.POST("/usage/tenant/:id/reset", usage.ResetAll)
	admin.POST("/usage/tenant/:id/sync", usage.SyncWithTier)
	admin.POST("/usage/resets", usage.RunMonthlyResets)
	admin.GET("/upgrade-requests", upgradeH.AdminList)
	admin.GET("/upgrade-requests/:id", upgradeH.AdminGet)
	admin.POST("/upgrade-requests/:id/claim", upgradeH.Claim)
	admin.POST("/upgrade-requests/:id/review", upgradeH.Review)
	admin.POST("/upgrade-requests/expire", upgradeH.RunExpiry)
	admin.GET("/billing/transactions", ledgerH.List)
	admin.POST("/billing/transactions", ledgerH.Create)
	admin.GET("/billing/transactions/:id", ledgerH.Get)
	admin.POST("/billing/transactions/:id/approve", ledgerH.Approve)
	admin.POST("/billing/transactions/:id/reject", ledgerH.Reject)
	admin.POST("/billing/transactions/:id/cancel", ledgerH.Cancel)
	admin.POST("/billing/transactions/:id/refund", ledgerH.Refund)
	admin.POST("/billing/transactions/:id/coupon", ledgerH.ApplyCoupon)
	admin.POST("/billing/transactions/:id/discount", ledgerH.ApplyDiscount)
	admin.POST("/billing/transactions/:id/bonus", ledgerH.AddBonus)
	admin.POST("/billing/transactions/:id/notes", ledgerH.AddNote)
	admin.POST("/coupons", couponH.Create)
	admin.GET("/coupons", couponH.List)
	admin.GET("/coupons/:id", couponH.Get)
	admin.POST("/coupons/:id/deactivate", couponH.Deactivate)
	admin.GET("/coupons/:id/redemptions", couponH.ListRedemptions)
	admin.POST("/tenants", tenantH.Provision)
	admin.GET("/tenants", tenantH.List)
	admin.GET("/tenants/:id", tenantH.Get)
	admin.POST("/tenants/:id/tier", tenantH.ChangeTier)
	admin.POST("/tenants/:id/status", tenantH.SetStatus)
	admin.PUT("/tenants/:id/overrides/:metric", tenantH.SetLimitOverride)
	admin.DELETE("/tenants/:id/overrides/:metric", tenantH.ClearLimitOverride)
	admin.GET("/tiers", tierH.AdminList)
	admin.PUT("/tiers/:code", tierH.Update)
	admin.GET("/reports/revenue", reportH.Revenue)
	admin.GET("/reports/tiers", reportH.TierDistribution)
	admin.GET("/reports/consistency", reportH.Consistency)
	admin.GET("/outbox/stats", outboxH.Stats)
	admin.GET("/outbox/dead", outboxH.ListDead)

	return &apiFixture{
		db: db, engine: engine, clock: clock, events: events, tiers: tiers, tenant: tenant,
		metering: metering, coupons: coupons, ledger: ledgerSvc, upgrades: upgrades,
	}
}

// asTenant issues a request as the fixture tenant
func (f *apiFixture) asTenant(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return f.asTenantOf(t, f.tenant.ID, method, path, body)
}

func (f *apiFixture) asTenantOf(t *testing.T, tenantID uuid.UUID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.DoJSON(t, f.engine, method, "/api/v1"+path, body, map[string]string{
		middleware.DevRoleHeader:   "tenant",
		middleware.DevTenantHeader: tenantID.String(),
	})
}

// asAdmin issues a request as a platform admin
func (f *apiFixture) asAdmin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.DoJSON(t, f.engine, method, "/api/v1"+path, body, map[string]string{
		middleware.DevRoleHeader: "admin",
	})
}

func (f *apiFixture) anonymous(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.DoJSON(t, f.engine, method, "/api/v1"+path, body, nil)
}
