package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	Event     EventConfig
	HTTP      HTTPConfig
	Scheduler SchedulerConfig
	Metering  MeteringConfig
	Upgrade   UpgradeConfig
	Storage   StorageConfig
	Runtime   RuntimeConfig
	Swagger   SwaggerConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name   string
	Env    string
	Port   string
	NodeID int64 // snowflake node, unique per running instance
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres (default) or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string // file path when Driver is sqlite
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. An empty Host disables Redis.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Enabled reports whether a Redis server is configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret                string
	AccessTokenExpiration time.Duration
	Issuer                string
}

// EventConfig holds event processing configuration
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
	IdempotencyTTL   time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// SchedulerConfig holds background job configuration
type SchedulerConfig struct {
	Enabled               bool
	UsageResetInterval    time.Duration
	UpgradeExpiryInterval time.Duration
	TrialExpiryInterval   time.Duration
	JobTimeout            time.Duration
	LockTTL               time.Duration
}

// MeteringConfig holds usage metering policy
type MeteringConfig struct {
	Enforcement         string // soft or hard
	ProvisionOnFirstUse bool
	ResetGaugeMetrics   bool
	WarningPercent      int64
	ResetBatchSize      int
}

// UpgradeConfig holds upgrade request workflow settings
type UpgradeConfig struct {
	RequestTTL       time.Duration
	ProrationEnabled bool
	DefaultCurrency  string
	ExpiryBatchSize  int
	TierCacheTTL     time.Duration
}

// StorageConfig holds payment proof storage settings. Proof checks are
// skipped unless Enabled.
type StorageConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string // optional, for S3-compatible stores
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string // proofs live under <prefix>/<tenant_id>/<file_id>
}

// RuntimeConfig holds development switches and feature flags
type RuntimeConfig struct {
	DevMode  bool
	Features map[string]bool
}

// SwaggerConfig holds Swagger documentation endpoint configuration
type SwaggerConfig struct {
	Enabled     bool     // Whether to enable Swagger endpoint
	RequireAuth bool     // Require authentication to access Swagger
	AllowedIPs  []string // IP whitelist (empty = allow all)
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
	// Continuous profiling
	ProfilingEnabled  bool
	PyroscopeEndpoint string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SUBGOV_ prefix (e.g., SUBGOV_DATABASE_PASSWORD)
// 2. .env file in the working directory
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SUBGOV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans whose default is true must be registered so an explicit false survives
	v.SetDefault("metering.reset_gauge_metrics", true)
	v.SetDefault("upgrade.proration_enabled", true)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("event.processor_enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name:   v.GetString("app.name"),
			Env:    v.GetString("app.env"),
			Port:   v.GetString("app.port"),
			NodeID: v.GetInt64("app.node_id"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
			Issuer:                v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
			IdempotencyTTL:   v.GetDuration("event.idempotency_ttl"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Scheduler: SchedulerConfig{
			Enabled:               v.GetBool("scheduler.enabled"),
			UsageResetInterval:    v.GetDuration("scheduler.usage_reset_interval"),
			UpgradeExpiryInterval: v.GetDuration("scheduler.upgrade_expiry_interval"),
			TrialExpiryInterval:   v.GetDuration("scheduler.trial_expiry_interval"),
			JobTimeout:            v.GetDuration("scheduler.job_timeout"),
			LockTTL:               v.GetDuration("scheduler.lock_ttl"),
		},
		Metering: MeteringConfig{
			Enforcement:         v.GetString("metering.enforcement"),
			ProvisionOnFirstUse: v.GetBool("metering.provision_on_first_use"),
			ResetGaugeMetrics:   v.GetBool("metering.reset_gauge_metrics"),
			WarningPercent:      v.GetInt64("metering.warning_percent"),
			ResetBatchSize:      v.GetInt("metering.reset_batch_size"),
		},
		Upgrade: UpgradeConfig{
			RequestTTL:       v.GetDuration("upgrade.request_ttl"),
			ProrationEnabled: v.GetBool("upgrade.proration_enabled"),
			DefaultCurrency:  v.GetString("upgrade.default_currency"),
			ExpiryBatchSize:  v.GetInt("upgrade.expiry_batch_size"),
			TierCacheTTL:     v.GetDuration("upgrade.tier_cache_ttl"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
			KeyPrefix:       v.GetString("storage.key_prefix"),
		},
		Runtime: RuntimeConfig{
			DevMode:  v.GetBool("runtime.dev_mode"),
			Features: featureFlags(v.GetStringMap("runtime.features")),
		},
		Swagger: SwaggerConfig{
			Enabled:     v.GetBool("swagger.enabled"),
			RequireAuth: v.GetBool("swagger.require_auth"),
			AllowedIPs:  v.GetStringSlice("swagger.allowed_ips"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeEndpoint: v.GetString("telemetry.pyroscope_endpoint"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func featureFlags(raw map[string]any) map[string]bool {
	out := make(map[string]bool, len(raw))
	for k, val := range raw {
		switch b := val.(type) {
		case bool:
			out[k] = b
		case string:
			out[k] = b == "true" || b == "1"
		}
	}
	return out
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "subgov-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "subgov"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host != "" && cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = time.Hour
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "subgov-backend"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 5 * time.Second
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 5
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 168 * time.Hour
	}
	if cfg.Event.IdempotencyTTL == 0 {
		cfg.Event.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 100
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	// No CORS origin default: cross-origin requests stay blocked until configured
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Dev-Tenant-ID"}
	}
	if cfg.Scheduler.UsageResetInterval == 0 {
		cfg.Scheduler.UsageResetInterval = 15 * time.Minute
	}
	if cfg.Scheduler.UpgradeExpiryInterval == 0 {
		cfg.Scheduler.UpgradeExpiryInterval = 10 * time.Minute
	}
	if cfg.Scheduler.TrialExpiryInterval == 0 {
		cfg.Scheduler.TrialExpiryInterval = time.Hour
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 5 * time.Minute
	}
	if cfg.Scheduler.LockTTL == 0 {
		cfg.Scheduler.LockTTL = cfg.Scheduler.JobTimeout
	}
	if cfg.Metering.Enforcement == "" {
		cfg.Metering.Enforcement = "soft"
	}
	if cfg.Metering.WarningPercent == 0 {
		cfg.Metering.WarningPercent = 80
	}
	if cfg.Metering.ResetBatchSize == 0 {
		cfg.Metering.ResetBatchSize = 100
	}
	if cfg.Upgrade.RequestTTL == 0 {
		cfg.Upgrade.RequestTTL = 7 * 24 * time.Hour
	}
	if cfg.Upgrade.DefaultCurrency == "" {
		cfg.Upgrade.DefaultCurrency = "USD"
	}
	if cfg.Upgrade.ExpiryBatchSize == 0 {
		cfg.Upgrade.ExpiryBatchSize = 100
	}
	if cfg.Upgrade.TierCacheTTL == 0 {
		cfg.Upgrade.TierCacheTTL = 5 * time.Minute
	}
	if cfg.Storage.KeyPrefix == "" {
		cfg.Storage.KeyPrefix = "payment-proofs"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "subgov-backend"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Runtime.Features == nil {
		cfg.Runtime.Features = map[string]bool{}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Metering.Enforcement != "soft" && c.Metering.Enforcement != "hard" {
		return fmt.Errorf("metering.enforcement must be soft or hard, got %q", c.Metering.Enforcement)
	}
	if c.Metering.WarningPercent <= 0 || c.Metering.WarningPercent >= 100 {
		return fmt.Errorf("metering.warning_percent must be between 1 and 99, got %d", c.Metering.WarningPercent)
	}
	if len(c.Upgrade.DefaultCurrency) != 3 {
		return fmt.Errorf("upgrade.default_currency must be a 3-letter ISO code")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("database.driver must be postgres in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Runtime.DevMode {
			return fmt.Errorf("runtime.dev_mode must be false in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Swagger.Enabled {
			if !c.Swagger.RequireAuth && len(c.Swagger.AllowedIPs) == 0 {
				return fmt.Errorf("swagger endpoint must be disabled, require authentication, or have IP restriction in production")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
