package billing

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/subgov/backend/internal/application/uow"
	"github.com/subgov/backend/internal/domain/billing"
	"github.com/subgov/backend/internal/domain/identity"
	"github.com/subgov/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// EnforcementPolicy decides what happens when an increment passes the limit
type EnforcementPolicy string

const (
	// EnforcementSoft allows the increment and raises an alert
	EnforcementSoft EnforcementPolicy = "soft"
	// EnforcementHard rejects the increment with LimitExceeded
	EnforcementHard EnforcementPolicy = "hard"
)

// IsValid returns true for known policies
func (p EnforcementPolicy) IsValid() bool {
	return p == EnforcementSoft || p == EnforcementHard
}

// MeteringConfig contains configuration for MeteringService
type MeteringConfig struct {
	Enforcement         EnforcementPolicy
	ProvisionOnFirstUse bool
	// ResetGaugeMetrics controls whether gauges (storage, users, branches) are
	// zeroed at rollover; accumulative metrics always are
	ResetGaugeMetrics bool
	Thresholds        billing.Thresholds
	ResetBatchSize    int
}

// DefaultMeteringConfig returns default configuration
func DefaultMeteringConfig() MeteringConfig {
	return MeteringConfig{
		Enforcement:       EnforcementSoft,
		ResetGaugeMetrics: true,
		Thresholds:        billing.DefaultThresholds(),
		ResetBatchSize:    100,
	}
}

// MeteringMetrics receives business counters from the metering engine
type MeteringMetrics interface {
	UsageRecorded(ctx context.Context, metric billing.MetricType, delta int64, overLimit bool)
	AlertRaised(ctx context.Context, metric billing.MetricType, level billing.AlertLevel)
	QuotaReset(ctx context.Context, metric billing.MetricType, reason string)
}

type noopMeteringMetrics struct{}

func (noopMeteringMetrics) UsageRecorded(context.Context, billing.MetricType, int64, bool)     {}
func (noopMeteringMetrics) AlertRaised(context.Context, billing.MetricType, billing.AlertLevel) {}
func (noopMeteringMetrics) QuotaReset(context.Context, billing.MetricType, string)              {}

// MeteringService tracks usage against tier quotas
type MeteringService struct {
	scope     uow.TransactionScope
	quotaRepo billing.UsageQuotaRepository
	alertRepo billing.UsageAlertRepository
	metrics   MeteringMetrics
	logger    *zap.Logger
	cfg       MeteringConfig
	now       func() time.Time
}

// NewMeteringService creates a new MeteringService
func NewMeteringService(
	scope uow.TransactionScope,
	quotaRepo billing.UsageQuotaRepository,
	alertRepo billing.UsageAlertRepository,
	logger *zap.Logger,
	cfg MeteringConfig,
) *MeteringService {
	if !cfg.Enforcement.IsValid() {
		cfg.Enforcement = EnforcementSoft
	}
	if cfg.Thresholds.WarningPercent <= 0 || cfg.Thresholds.ExceededPercent <= 0 {
		cfg.Thresholds = billing.DefaultThresholds()
	}
	if cfg.ResetBatchSize <= 0 {
		cfg.ResetBatchSize = 100
	}
	return &MeteringService{
		scope:     scope,
		quotaRepo: quotaRepo,
		alertRepo: alertRepo,
		metrics:   noopMeteringMetrics{},
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetMetrics wires a metrics sink
func (s *MeteringService) SetMetrics(m MeteringMetrics) {
	if m != nil {
		s.metrics = m
	}
}

// SetClock overrides the time source
func (s *MeteringService) SetClock(now func() time.Time) {
	s.now = now
}

// Config returns the active configuration
func (s *MeteringService) Config() MeteringConfig {
	return s.cfg
}

// RecordUsage adds delta to the tenant's counter under a row lock and raises an
// alert when a threshold is crossed for the first time.
func (s *MeteringService) RecordUsage(ctx context.Context, tenantID uuid.UUID, metric billing.MetricType, delta int64) (*RecordUsageResult, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if !metric.IsValid() {
		return nil, shared.NewValidationError("INVALID_METRIC_TYPE", "Unknown metric type: "+string(metric))
	}
	if delta <= 0 {
		return nil, shared.NewValidationError("INVALID_DELTA", "Usage delta must be positive")
	}

	now := s.now()
	var result RecordUsageResult
	err := s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		quota, err := repos.QuotaRepo().FindByTenantAndMetricForUpdate(ctx, tenantID, metric)
		if errors.Is(err, shared.ErrNotFound) {
			if !s.cfg.ProvisionOnFirstUse {
				return shared.ErrQuotaNotFound.WithDetail("metric_type", string(metric))
			}
			quota, err = s.provisionQuota(ctx, repos, tenantID, metric, now)
		}
		if err != nil {
			return err
		}

		result.RolledOver = s.rollover(ctx, quota, now)

		if s.cfg.Enforcement == EnforcementHard && quota.WouldExceed(delta) {
			return shared.NewLimitExceededError("Usage limit reached for " + metric.DisplayName()).
				WithDetail("metric_type", string(metric)).
				WithDetail("current", quota.CurrentValue).
				WithDetail("limit", quota.LimitValue)
		}

		prev, err := quota.Increment(delta, now)
		if err != nil {
			return err
		}
		result.PreviousValue = prev
		if err := s.saveQuota(ctx, repos, quota); err != nil {
			return err
		}

		alert, err := s.raiseAlert(ctx, repos, quota, prev, quota.LimitValue, now)
		if err != nil {
			return err
		}
		if alert != nil {
			dto := ToAlertDTO(alert)
			result.Alert = &dto
		}
		result.Quota = ToQuotaDTO(quota)
		result.OverLimit = !quota.IsUnlimited() && quota.CurrentValue > quota.LimitValue
		return nil
	})
	if err != nil {
		if shared.IsKind(err, shared.KindLimitExceeded) {
			s.logger.Info("Usage rejected by hard limit",
				zap.String("tenant_id", tenantID.String()),
				zap.String("metric_type", string(metric)),
				zap.Int64("delta", delta))
		}
		return nil, err
	}

	s.metrics.UsageRecorded(ctx, metric, delta, result.OverLimit)
	if result.Alert != nil {
		s.metrics.AlertRaised(ctx, metric, billing.AlertLevel(result.Alert.Level))
		s.logger.Info("Usage alert raised",
			zap.String("tenant_id", tenantID.String()),
			zap.String("metric_type", string(metric)),
			zap.String("level", result.Alert.Level),
			zap.Int64("current_value", result.Quota.CurrentValue),
			zap.Int64("limit_value", result.Quota.LimitValue))
	}
	return &result, nil
}

// CheckLimit is an advisory read. It applies a pending rollover to the view so
// it agrees with what RecordUsage would see.
func (s *MeteringService) CheckLimit(ctx context.Context, tenantID uuid.UUID, metric billing.MetricType) (*LimitCheckDTO, error) {
	if !metric.IsValid() {
		return nil, shared.NewValidationError("INVALID_METRIC_TYPE", "Unknown metric type: "+string(metric))
	}
	quota, err := s.quotaRepo.FindByTenantAndMetric(ctx, tenantID, metric)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrQuotaNotFound.WithDetail("metric_type", string(metric))
		}
		return nil, err
	}
	quota.Rollover(s.now(), s.resetsValue(metric))
	dto := toLimitCheckDTO(quota.Check())
	return &dto, nil
}

// ListQuotas returns every quota of the tenant in metric order
func (s *MeteringService) ListQuotas(ctx context.Context, tenantID uuid.UUID) ([]QuotaDTO, error) {
	quotas, err := s.quotaRepo.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, q := range quotas {
		q.Rollover(now, s.resetsValue(q.MetricType))
	}
	sortQuotas(quotas)
	return ToQuotaDTOs(quotas), nil
}

// ResetUsage zeroes one counter and acknowledges its open alerts. The limit is untouched.
func (s *MeteringService) ResetUsage(ctx context.Context, tenantID uuid.UUID, metric billing.MetricType) (*QuotaDTO, error) {
	if !metric.IsValid() {
		return nil, shared.NewValidationError("INVALID_METRIC_TYPE", "Unknown metric type: "+string(metric))
	}
	now := s.now()
	var quota *billing.UsageQuota
	err := s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		var err error
		quota, err = repos.QuotaRepo().FindByTenantAndMetricForUpdate(ctx, tenantID, metric)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.ErrQuotaNotFound.WithDetail("metric_type", string(metric))
			}
			return err
		}
		return s.resetQuota(ctx, repos, quota, now)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Usage reset by admin",
		zap.String("tenant_id", tenantID.String()),
		zap.String("metric_type", string(metric)))
	dto := ToQuotaDTO(quota)
	return &dto, nil
}

// ResetAll zeroes every counter of the tenant
func (s *MeteringService) ResetAll(ctx context.Context, tenantID uuid.UUID) ([]QuotaDTO, error) {
	now := s.now()
	var quotas []*billing.UsageQuota
	err := s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		var err error
		quotas, err = repos.QuotaRepo().FindByTenantForUpdate(ctx, tenantID)
		if err != nil {
			return err
		}
		if len(quotas) == 0 {
			return shared.ErrQuotaNotFound
		}
		for _, q := range quotas {
			if err := s.resetQuota(ctx, repos, q, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("All usage reset by admin", zap.String("tenant_id", tenantID.String()))
	sortQuotas(quotas)
	return ToQuotaDTOs(quotas), nil
}

func (s *MeteringService) resetQuota(ctx context.Context, repos uow.TransactionalRepositories, q *billing.UsageQuota, now time.Time) error {
	prev := q.CurrentValue
	q.Reset(now)
	q.AddDomainEvent(billing.NewUsageQuotaResetEvent(q, prev, billing.ResetReasonAdmin))
	if err := s.saveQuota(ctx, repos, q); err != nil {
		return err
	}
	if _, err := repos.AlertRepo().AcknowledgeOpen(ctx, q.TenantID, q.MetricType, now); err != nil {
		return err
	}
	s.metrics.QuotaReset(ctx, q.MetricType, billing.ResetReasonAdmin)
	return nil
}

// SyncWithTier recomputes every limit from the tenant's tier and overrides
func (s *MeteringService) SyncWithTier(ctx context.Context, tenantID uuid.UUID) ([]QuotaDTO, error) {
	var quotas []*billing.UsageQuota
	err := s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
		tenant, err := repos.TenantRepo().FindByID(ctx, tenantID)
		if err != nil {
			return err
		}
		quotas, err = s.SyncWithTierInScope(ctx, repos, tenant)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToQuotaDTOs(quotas), nil
}

// SyncWithTierInScope runs the tier sync inside an existing unit of work. It
// creates missing quota rows, never changes current values, and is idempotent.
func (s *MeteringService) SyncWithTierInScope(ctx context.Context, repos uow.TransactionalRepositories, tenant *identity.Tenant) ([]*billing.UsageQuota, error) {
	tier, err := repos.TierRepo().FindByCode(ctx, tenant.TierCode)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("TIER_NOT_FOUND", "Tier not found: "+tenant.TierCode)
		}
		return nil, err
	}
	existing, err := repos.QuotaRepo().FindByTenantForUpdate(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}
	byMetric := make(map[billing.MetricType]*billing.UsageQuota, len(existing))
	for _, q := range existing {
		byMetric[q.MetricType] = q
	}

	now := s.now()
	out := make([]*billing.UsageQuota, 0, len(billing.AllMetricTypes()))
	for _, metric := range billing.AllMetricTypes() {
		limit, overridden := tenant.EffectiveLimit(tier, metric)
		q, ok := byMetric[metric]
		if !ok {
			q, err = billing.NewUsageQuota(tenant.ID, metric, limit, now)
			if err != nil {
				return nil, err
			}
			if err := repos.QuotaRepo().Create(ctx, q); err != nil {
				return nil, err
			}
			out = append(out, q)
			continue
		}

		prevLimit, err := q.SetLimit(limit, now)
		if err != nil {
			return nil, err
		}
		if prevLimit != limit {
			q.AddDomainEvent(billing.NewUsageQuotaLimitSyncedEvent(q, prevLimit, overridden))
			if err := s.saveQuota(ctx, repos, q); err != nil {
				return nil, err
			}
			// a lowered limit can push existing usage over a threshold
			if _, err := s.raiseAlert(ctx, repos, q, q.CurrentValue, prevLimit, now); err != nil {
				return nil, err
			}
		}
		out = append(out, q)
	}

	s.logger.Debug("Quotas synced with tier",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("tier", tier.Code))
	return out, nil
}

// ProcessMonthlyResets rolls over every quota whose period has ended. Each batch
// is claimed with SKIP LOCKED and processed in its own transaction, so
// concurrent runs split the work and a re-run within the period finds nothing.
func (s *MeteringService) ProcessMonthlyResets(ctx context.Context) (*ResetSummary, error) {
	summary := &ResetSummary{}
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		now := s.now()
		claimed, reset := 0, 0
		err := s.scope.Execute(ctx, func(repos uow.TransactionalRepositories) error {
			ids, err := repos.QuotaRepo().ClaimDue(ctx, now, s.cfg.ResetBatchSize)
			if err != nil {
				return err
			}
			claimed = len(ids)
			for _, id := range ids {
				q, err := repos.QuotaRepo().FindByIDForUpdate(ctx, id)
				if errors.Is(err, shared.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				if !s.rollover(ctx, q, now) {
					continue
				}
				if err := s.saveQuota(ctx, repos, q); err != nil {
					return err
				}
				reset++
			}
			return nil
		})
		if err != nil {
			s.logger.Error("Monthly reset batch failed", zap.Error(err), zap.Int("batches_done", summary.Batches))
			return summary, err
		}
		summary.Claimed += claimed
		summary.Reset += reset
		if claimed == 0 {
			break
		}
		summary.Batches++
		if claimed < s.cfg.ResetBatchSize {
			break
		}
	}
	if summary.Reset > 0 {
		s.logger.Info("Monthly usage reset completed",
			zap.Int("quotas_reset", summary.Reset),
			zap.Int("batches", summary.Batches))
	}
	return summary, nil
}

// ListAlerts pages through the tenant's alerts
func (s *MeteringService) ListAlerts(ctx context.Context, tenantID uuid.UUID, filter billing.UsageAlertFilter) (*AlertListResult, error) {
	filter.Filter = filter.Filter.Normalize()
	alerts, total, err := s.alertRepo.FindByTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	items := make([]AlertDTO, len(alerts))
	for i, a := range alerts {
		items[i] = ToAlertDTO(a)
	}
	res := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &res, nil
}

// AcknowledgeAlert marks one of the tenant's alerts as seen
func (s *MeteringService) AcknowledgeAlert(ctx context.Context, tenantID, alertID uuid.UUID, by *uuid.UUID) (*AlertDTO, error) {
	alert, err := s.alertRepo.FindByID(ctx, tenantID, alertID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("ALERT_NOT_FOUND", "Usage alert not found")
		}
		return nil, err
	}
	if !alert.Acknowledged {
		alert.Acknowledge(by, s.now())
		if err := s.alertRepo.Update(ctx, alert); err != nil {
			return nil, err
		}
	}
	dto := ToAlertDTO(alert)
	return &dto, nil
}

func (s *MeteringService) resetsValue(metric billing.MetricType) bool {
	return metric.IsAccumulative() || s.cfg.ResetGaugeMetrics
}

// rollover advances an elapsed period and closes alerts raised in it
func (s *MeteringService) rollover(ctx context.Context, q *billing.UsageQuota, now time.Time) bool {
	prev := q.CurrentValue
	reset := s.resetsValue(q.MetricType)
	if !q.Rollover(now, reset) {
		return false
	}
	if reset {
		q.AddDomainEvent(billing.NewUsageQuotaResetEvent(q, prev, billing.ResetReasonRollover))
		s.metrics.QuotaReset(ctx, q.MetricType, billing.ResetReasonRollover)
	}
	return true
}

// saveQuota persists q, closing stale alerts when the counter was zeroed, and
// records its pending events
func (s *MeteringService) saveQuota(ctx context.Context, repos uow.TransactionalRepositories, q *billing.UsageQuota) error {
	if err := repos.QuotaRepo().Update(ctx, q); err != nil {
		return err
	}
	for _, e := range q.GetDomainEvents() {
		if ev, ok := e.(*billing.UsageQuotaResetEvent); ok && ev.Reason == billing.ResetReasonRollover {
			if _, err := repos.AlertRepo().AcknowledgeOpen(ctx, q.TenantID, q.MetricType, q.UpdatedAt); err != nil {
				return err
			}
		}
	}
	return uow.RecordEvents(ctx, repos.Events(), q)
}

// raiseAlert creates an alert when (prevValue, prevLimit) -> (current, limit)
// crosses a threshold and no open alert exists at that level
func (s *MeteringService) raiseAlert(ctx context.Context, repos uow.TransactionalRepositories, q *billing.UsageQuota, prevValue, prevLimit int64, now time.Time) (*billing.UsageAlert, error) {
	level, crossed := s.cfg.Thresholds.Crossed(prevValue, prevLimit, q.CurrentValue, q.LimitValue)
	if !crossed {
		return nil, nil
	}
	open, err := repos.AlertRepo().ExistsOpen(ctx, q.TenantID, q.MetricType, level)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, nil
	}
	alert := billing.NewUsageAlert(q, level, now)
	if err := repos.AlertRepo().Create(ctx, alert); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, nil
		}
		return nil, err
	}
	if err := uow.RecordEvents(ctx, repos.Events(), alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *MeteringService) provisionQuota(ctx context.Context, repos uow.TransactionalRepositories, tenantID uuid.UUID, metric billing.MetricType, now time.Time) (*billing.UsageQuota, error) {
	tenant, err := repos.TenantRepo().FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("TENANT_NOT_FOUND", "Tenant not found")
		}
		return nil, err
	}
	tier, err := repos.TierRepo().FindByCode(ctx, tenant.TierCode)
	if err != nil {
		return nil, err
	}
	limit, _ := tenant.EffectiveLimit(tier, metric)
	q, err := billing.NewUsageQuota(tenantID, metric, limit, now)
	if err != nil {
		return nil, err
	}
	if err := repos.QuotaRepo().Create(ctx, q); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, shared.NewConcurrencyConflictError("Quota was provisioned concurrently, retry the request")
		}
		return nil, err
	}
	s.logger.Info("Quota provisioned on first use",
		zap.String("tenant_id", tenantID.String()),
		zap.String("metric_type", string(metric)))
	return q, nil
}

func sortQuotas(quotas []*billing.UsageQuota) {
	order := make(map[billing.MetricType]int)
	for i, m := range billing.AllMetricTypes() {
		order[m] = i
	}
	sort.Slice(quotas, func(i, j int) bool {
		return order[quotas[i].MetricType] < order[quotas[j].MetricType]
	})
}
