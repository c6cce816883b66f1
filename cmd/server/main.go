package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	_ "github.com/subgov/backend/docs"
	appbilling "github.com/subgov/backend/internal/application/billing"
	appcoupon "github.com/subgov/backend/internal/application/coupon"
	appevent "github.com/subgov/backend/internal/application/event"
	appidentity "github.com/subgov/backend/internal/application/identity"
	appledger "github.com/subgov/backend/internal/application/ledger"
	reportapp "github.com/subgov/backend/internal/application/report"
	appupgrade "github.com/subgov/backend/internal/application/upgrade"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/shared"
	"github.com/subgov/backend/internal/infrastructure/auth"
	"github.com/subgov/backend/internal/infrastructure/cache"
	"github.com/subgov/backend/internal/infrastructure/config"
	"github.com/subgov/backend/internal/infrastructure/event"
	"github.com/subgov/backend/internal/infrastructure/idgen"
	"github.com/subgov/backend/internal/infrastructure/logger"
	"github.com/subgov/backend/internal/infrastructure/notification"
	"github.com/subgov/backend/internal/infrastructure/persistence"
	"github.com/subgov/backend/internal/infrastructure/scheduler"
	"github.com/subgov/backend/internal/infrastructure/storage"
	"github.com/subgov/backend/internal/infrastructure/telemetry"
	"github.com/subgov/backend/internal/interfaces/http/handler"
	"github.com/subgov/backend/internal/interfaces/http/middleware"
	"github.com/subgov/backend/internal/interfaces/http/router"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

//	@title			Subscription Governance API
//	@version		1.0
//	@description	Usage metering, quota enforcement, billing ledger and tier upgrade workflow for multi-tenant SaaS.

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output}
	bootLog := logger.New(logCfg)

	// Telemetry first so the final logger can tee into the OTLP log bridge
	providers, err := telemetry.Setup(context.Background(), telemetry.ConfigFrom(cfg.Telemetry, version), bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log := bootLog
	if providers.Enabled() {
		log = logger.New(logCfg, providers.ZapCore(logger.ParseLevel(cfg.Log.Level)))
	}
	defer func() {
		_ = log.Sync()
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := providers.Shutdown(ctx); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()

	log.Info("Starting subscription governance engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)
	meter := providers.Meter("github.com/subgov/backend")

	// Database
	gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.InstrumentDB(db.DB, telemetry.DBConfig{
		TraceEnabled:    cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        cfg.Database.Driver,
	}, meter, log); err != nil {
		log.Warn("Database instrumentation disabled", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Redis is optional; every consumer has a process-local fallback
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			_ = redisClient.Close()
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	// Repositories
	tenantRepo := persistence.NewGormTenantRepository(db.DB)
	tierRepo := cache.NewCachedTierRepository(persistence.NewGormTierRepository(db.DB), redisClient, cfg.Upgrade.TierCacheTTL, log)
	quotaRepo := persistence.NewGormUsageQuotaRepository(db.DB)
	alertRepo := persistence.NewGormUsageAlertRepository(db.DB)
	txRepo := persistence.NewGormTransactionRepository(db.DB)
	requestRepo := persistence.NewGormUpgradeRequestRepository(db.DB)
	couponRepo := persistence.NewGormCouponRepository(db.DB)
	redemptionRepo := persistence.NewGormRedemptionRepository(db.DB)
	reportRepo := persistence.NewGormReportRepository(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	// Events are written to the outbox inside each unit of work
	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)
	scope := persistence.NewGormTransactionScope(db.DB, event.NewRecorderFactory(serializer, cfg.Event.MaxRetries))

	numbers, err := idgen.NewSnowflakeNumbers(cfg.App.NodeID)
	if err != nil {
		log.Fatal("Failed to initialize number generator", zap.Error(err))
	}

	businessMetrics, err := telemetry.NewBusinessMetrics(meter, log)
	if err != nil {
		log.Fatal("Failed to initialize business metrics", zap.Error(err))
	}

	// Application services
	meteringSvc := appbilling.NewMeteringService(scope, quotaRepo, alertRepo, log, meteringConfig(cfg.Metering))
	meteringSvc.SetMetrics(businessMetrics)
	tenantSvc := appidentity.NewTenantService(scope, tenantRepo, meteringSvc, log)
	tierSvc := appidentity.NewTierService(tierRepo, log)
	couponSvc := appcoupon.NewCouponService(scope, couponRepo, redemptionRepo, log)
	couponSvc.SetMetrics(businessMetrics)
	ledgerSvc := appledger.NewLedgerService(scope, txRepo, couponSvc, tenantSvc, numbers,
		appledger.LedgerConfig{DefaultCurrency: cfg.Upgrade.DefaultCurrency}, log)
	upgradeSvc := appupgrade.NewUpgradeService(scope, requestRepo, tenantRepo, tierRepo, ledgerSvc, couponSvc, numbers,
		appupgrade.UpgradeConfig{
			RequestTTL:       cfg.Upgrade.RequestTTL,
			ProrationEnabled: cfg.Upgrade.ProrationEnabled,
			ExpiryBatchSize:  cfg.Upgrade.ExpiryBatchSize,
		}, log)
	upgradeSvc.SetMetrics(businessMetrics)
	reportSvc := reportapp.NewReportService(reportRepo, reportRepo, tenantRepo, tierRepo, quotaRepo, txRepo)
	outboxSvc := appevent.NewOutboxService(outboxRepo, log)

	var proofStore *storage.S3ProofStore
	if cfg.Storage.Enabled {
		proofStore, err = storage.NewS3ProofStore(context.Background(), cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize proof storage", zap.Error(err))
		}
		upgradeSvc.SetProofVerifier(proofStore)
		log.Info("Payment proof verification enabled", zap.String("bucket", cfg.Storage.Bucket))
	}

	if err := businessMetrics.ObserveCounts("subgov.tenants", "Tenants by status", attribute.Key("status"),
		func(ctx context.Context) (map[string]int64, error) {
			counts, err := tenantRepo.CountByStatus(ctx)
			if err != nil {
				return nil, err
			}
			out := make(map[string]int64, len(counts))
			for status, n := range counts {
				out[string(status)] = n
			}
			return out, nil
		}); err != nil {
		log.Warn("Tenant gauge disabled", zap.Error(err))
	}
	if err := businessMetrics.ObserveCounts("subgov.outbox.entries", "Outbox entries by status", attribute.Key("status"),
		func(ctx context.Context) (map[string]int64, error) {
			counts, err := outboxRepo.CountByStatus(ctx)
			if err != nil {
				return nil, err
			}
			out := make(map[string]int64, len(counts))
			for status, n := range counts {
				out[string(status)] = n
			}
			return out, nil
		}); err != nil {
		log.Warn("Outbox gauge disabled", zap.Error(err))
	}

	// Event bus and notification delivery
	eventBus := event.NewInMemoryEventBus(log)
	notifiers := notification.Fanout{notification.NewLogNotifier(log)}
	if redisClient != nil {
		notifiers = append(notifiers, notification.NewRedisNotifier(redisClient))
	}
	idempotencyStore := cache.NewIdempotencyStore(redisClient, log)
	deliveries, err := event.NewDeliveryCounter(meter)
	if err != nil {
		log.Fatal("Failed to create delivery counter", zap.Error(err))
	}
	eventHandlers := event.WrapHandlersWithIdempotency(
		[]shared.EventHandler{appevent.NewNotificationHandler(notifiers, log)},
		idempotencyStore, log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{TTL: cfg.Event.IdempotencyTTL, Enabled: true}),
		event.WithDeliveryCounter(deliveries),
	)
	for _, h := range eventHandlers {
		eventBus.Subscribe(h, h.EventTypes()...)
	}
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	if cfg.Event.ProcessorEnabled {
		processorConfig := event.DefaultOutboxProcessorConfig()
		if cfg.Event.BatchSize > 0 {
			processorConfig.BatchSize = cfg.Event.BatchSize
		}
		if cfg.Event.PollInterval > 0 {
			processorConfig.PollInterval = cfg.Event.PollInterval
		}
		processorConfig.CleanupEnabled = cfg.Event.CleanupEnabled
		if cfg.Event.CleanupRetention > 0 {
			processorConfig.CleanupRetention = cfg.Event.CleanupRetention
		}
		outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, serializer, processorConfig, log)
		if err := outboxProcessor.Start(context.Background()); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", processorConfig.BatchSize),
			zap.Duration("poll_interval", processorConfig.PollInterval),
		)
	}

	// Background jobs
	jobs := scheduler.NewScheduler(scheduler.ConfigFrom(cfg.Scheduler), scheduler.NewLocker(redisClient), log)
	for _, job := range []scheduler.Job{
		scheduler.UsageResetJob(meteringSvc, cfg.Scheduler),
		scheduler.UpgradeExpiryJob(upgradeSvc, cfg.Scheduler),
		scheduler.TrialExpiryJob(tenantSvc, cfg.Scheduler),
	} {
		if err := jobs.Register(job); err != nil {
			log.Fatal("Failed to register job", zap.String("job", job.Name), zap.Error(err))
		}
	}
	if err := jobs.Start(context.Background()); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}
	defer func() {
		if err := jobs.Stop(context.Background()); err != nil {
			log.Error("Error stopping scheduler", zap.Error(err))
		}
	}()

	listenCtx, stopListening := context.WithCancel(context.Background())
	defer stopListening()
	go func() {
		if err := tierRepo.Listen(listenCtx); err != nil {
			log.Warn("Tier cache invalidation listener stopped", zap.Error(err))
		}
	}()

	// HTTP handlers
	checks := []handler.DependencyCheck{{
		Name:  "database",
		Check: db.Ping,
	}}
	if redisClient != nil {
		checks = append(checks, handler.DependencyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	if proofStore != nil {
		checks = append(checks, handler.DependencyCheck{Name: "storage", Check: proofStore.Ping})
	}
	runtime := config.NewRuntimeSnapshot(cfg.Runtime, version)
	handlers := router.Handlers{
		System:  handler.NewSystemHandler(cfg.App.Name, version, log, checks...),
		Meta:    handler.NewMetaHandler(runtime, meteringConfig(cfg.Metering), log),
		Tier:    handler.NewTierHandler(tierSvc, log),
		Tenant:  handler.NewTenantHandler(tenantSvc, log),
		Usage:   handler.NewUsageHandler(meteringSvc, log),
		Upgrade: handler.NewUpgradeHandler(upgradeSvc, log),
		Ledger:  handler.NewLedgerHandler(ledgerSvc, log),
		Coupon:  handler.NewCouponHandler(couponSvc, log),
		Report:  handler.NewReportHandler(reportSvc, log),
		Outbox:  handler.NewOutboxHandler(outboxSvc, log),
	}

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to register validators", zap.Error(err))
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order matters: request ID and recovery wrap everything, the
	// tracing span must exist before the access log reads its trace ID
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	if providers.Enabled() {
		engine.Use(middleware.Tracing(cfg.Telemetry.ServiceName))
		engine.Use(middleware.SpanEnricher())
		httpMetrics, err := middleware.HTTPMetrics(meter)
		if err != nil {
			log.Fatal("Failed to initialize HTTP metrics", zap.Error(err))
		}
		engine.Use(httpMetrics)
	}
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure(cfg.App.Env == "production"))
	engine.Use(middleware.CORS(middleware.CORSConfigFrom(cfg.HTTP)))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	if cfg.HTTP.RateLimitEnabled {
		engine.Use(middleware.RateLimit(middleware.NewLimiter(redisClient, cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow), log))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}
	if cfg.Telemetry.ProfilingEnabled {
		engine.Use(middleware.Profiling(middleware.DefaultProfilingConfig()))
	}

	authn := middleware.Authenticate(middleware.AuthConfig{
		Tokens:      auth.NewJWTService(cfg.JWT),
		Revocations: auth.NewRevocationList(redisClient),
		Runtime:     runtime,
		Logger:      log,
	})
	if runtime.DevMode {
		log.Warn("Dev mode enabled: X-Dev-Role and X-Dev-Tenant-ID headers are trusted")
	}

	router.MountProbes(engine, handlers.System)
	api := router.NewRouter(engine)
	for _, group := range router.Groups(handlers, authn) {
		api.Register(group)
	}
	api.Setup()

	if cfg.Swagger.Enabled {
		engine.GET("/swagger/*any", middleware.SwaggerProtection(cfg.Swagger, authn), ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// meteringConfig maps the config section onto the engine's policy
func meteringConfig(cfg config.MeteringConfig) appbilling.MeteringConfig {
	out := appbilling.DefaultMeteringConfig()
	if p := appbilling.EnforcementPolicy(cfg.Enforcement); p.IsValid() {
		out.Enforcement = p
	}
	out.ProvisionOnFirstUse = cfg.ProvisionOnFirstUse
	out.ResetGaugeMetrics = cfg.ResetGaugeMetrics
	if cfg.WarningPercent > 0 && cfg.WarningPercent < billing.DefaultExceededPercent {
		out.Thresholds.WarningPercent = cfg.WarningPercent
	}
	if cfg.ResetBatchSize > 0 {
		out.ResetBatchSize = cfg.ResetBatchSize
	}
	return out
}
