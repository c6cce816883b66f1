package router

import (
	"github.com/gin-gonic/gin"
	"github.com/subgov/backend/internal/interfaces/http/handler"
	"github.com/subgov/backend/internal/interfaces/http/middleware"
)

// Handlers are the HTTP handlers served under the API group
type Handlers struct {
	System  *handler.SystemHandler
	Meta    *handler.MetaHandler
	Tier    *handler.TierHandler
	Tenant  *handler.TenantHandler
	Usage   *handler.UsageHandler
	Upgrade *handler.UpgradeHandler
	Ledger  *handler.LedgerHandler
	Coupon  *handler.CouponHandler
	Report  *handler.ReportHandler
	Outbox  *handler.OutboxHandler
}

// MountProbes registers the liveness and readiness probes at the engine root
func MountProbes(engine *gin.Engine, sys *handler.SystemHandler) {
	engine.GET("/health", sys.Health)
	engine.GET("/ready", sys.Ready)
}

// Groups builds the API route groups. authn resolves the caller; tenant
// groups then require a tenant binding and the admin group the admin role.
func Groups(h Handlers, authn gin.HandlerFunc) []*DomainGroup {
	public := NewDomainGroup("public", "")
	public.GET("/meta/enums", h.Meta.Enums)
	public.GET("/meta/runtime", h.Meta.Runtime)
	public.GET("/system/info", h.System.GetSystemInfo)

	catalog := NewDomainGroup("tiers", "/tiers").Use(authn)
	catalog.GET("", h.Tier.List)
	catalog.GET("/:code", h.Tier.Get)

	return []*DomainGroup{public, catalog, tenantGroup(h, authn), adminGroup(h, authn)}
}

func tenantGroup(h Handlers, authn gin.HandlerFunc) *DomainGroup {
	own := NewDomainGroup("tenant", "").Use(authn, middleware.RequireTenant())

	own.GET("/tenant", h.Tenant.Current)

	usage := own.Group("usage", "/usage")
	usage.GET("/quotas", h.Usage.ListQuotas)
	usage.GET("/quotas/:metric/check", h.Usage.CheckLimit)
	usage.POST("/record", h.Usage.RecordUsage)
	usage.GET("/alerts", h.Usage.ListAlerts)
	usage.POST("/alerts/:id/acknowledge", h.Usage.AcknowledgeAlert)

	upgrades := own.Group("upgrades", "/upgrade-requests")
	upgrades.POST("/preview", h.Upgrade.Preview)
	upgrades.POST("", h.Upgrade.Create)
	upgrades.GET("", h.Upgrade.List)
	upgrades.GET("/:id", h.Upgrade.Get)
	upgrades.POST("/:id/proof", h.Upgrade.UploadProof)
	upgrades.POST("/:id/cancel", h.Upgrade.Cancel)

	billing := own.Group("billing", "/billing/transactions")
	billing.GET("", h.Ledger.ListOwn)
	billing.GET("/:id", h.Ledger.GetOwn)

	own.POST("/coupons/validate", h.Coupon.Validate)
	return own
}

func adminGroup(h Handlers, authn gin.HandlerFunc) *DomainGroup {
	admin := NewDomainGroup("admin", "/admin").Use(authn, middleware.RequireAdmin())

	tenants := admin.Group("tenants", "/tenants")
	tenants.POST("", h.Tenant.Provision)
	tenants.GET("", h.Tenant.List)
	tenants.POST("/expire-trials", h.Tenant.ExpireTrials)
	tenants.GET("/:id", h.Tenant.Get)
	tenants.PUT("/:id", h.Tenant.Update)
	tenants.POST("/:id/tier", h.Tenant.ChangeTier)
	tenants.POST("/:id/status", h.Tenant.SetStatus)
	tenants.PUT("/:id/overrides/:metric", h.Tenant.SetLimitOverride)
	tenants.DELETE("/:id/overrides/:metric", h.Tenant.ClearLimitOverride)

	tiers := admin.Group("tiers", "/tiers")
	tiers.GET("", h.Tier.AdminList)
	tiers.PUT("/:code", h.Tier.Update)

	usage := admin.Group("usage", "/usage")
	usage.POST("/resets", h.Usage.RunMonthlyResets)
	usage.GET("/tenant/:id", h.Usage.AdminListQuotas)
	usage.GET("/tenant/:id/alerts", h.Usage.AdminListAlerts)
	usage.POST("/tenant/:id/reset", h.Usage.ResetAll)
	usage.POST("/tenant/:id/reset/:metric", h.Usage.ResetMetric)
	usage.POST("/tenant/:id/sync", h.Usage.SyncWithTier)

	upgrades := admin.Group("upgrades", "/upgrade-requests")
	upgrades.GET("", h.Upgrade.AdminList)
	upgrades.POST("/expire", h.Upgrade.RunExpiry)
	upgrades.GET("/:id", h.Upgrade.AdminGet)
	upgrades.POST("/:id/claim", h.Upgrade.Claim)
	upgrades.POST("/:id/review", h.Upgrade.Review)

	ledger := admin.Group("billing", "/billing/transactions")
	ledger.GET("", h.Ledger.List)
	ledger.POST("", h.Ledger.Create)
	ledger.GET("/:id", h.Ledger.Get)
	ledger.POST("/:id/approve", h.Ledger.Approve)
	ledger.POST("/:id/reject", h.Ledger.Reject)
	ledger.POST("/:id/cancel", h.Ledger.Cancel)
	ledger.POST("/:id/refund", h.Ledger.Refund)
	ledger.POST("/:id/coupon", h.Ledger.ApplyCoupon)
	ledger.POST("/:id/discount", h.Ledger.ApplyDiscount)
	ledger.POST("/:id/bonus", h.Ledger.AddBonus)
	ledger.POST("/:id/notes", h.Ledger.AddNote)

	coupons := admin.Group("coupons", "/coupons")
	coupons.POST("", h.Coupon.Create)
	coupons.GET("", h.Coupon.List)
	coupons.GET("/:id", h.Coupon.Get)
	coupons.POST("/:id/activate", h.Coupon.Activate)
	coupons.POST("/:id/deactivate", h.Coupon.Deactivate)
	coupons.GET("/:id/redemptions", h.Coupon.ListRedemptions)

	reports := admin.Group("reports", "/reports")
	reports.GET("/revenue", h.Report.Revenue)
	reports.GET("/tiers", h.Report.TierDistribution)
	reports.GET("/usage", h.Report.UsageOverview)
	reports.GET("/consistency", h.Report.Consistency)

	outbox := admin.Group("outbox", "/outbox")
	outbox.GET("/stats", h.Outbox.Stats)
	outbox.GET("/dead", h.Outbox.ListDead)
	outbox.POST("/dead/retry-all", h.Outbox.RetryAll)
	outbox.GET("/:id", h.Outbox.Get)
	outbox.POST("/:id/retry", h.Outbox.Retry)

	return admin
}
