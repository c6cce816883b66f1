package scheduler

import (
	"context"

	appbilling "github.com/subgov/backend/internal/application/billing"
	"github.com/subgov/backend/internal/infrastructure/config"
)

// Job names, also used as lock keys
const (
	JobUsageReset    = "usage_reset"
	JobUpgradeExpiry = "upgrade_expiry"
	JobTrialExpiry   = "trial_expiry"
)

// QuotaResetter rolls over elapsed quota periods
type QuotaResetter interface {
	ProcessMonthlyResets(ctx context.Context) (*appbilling.ResetSummary, error)
}

// UpgradeExpirer expires stale upgrade requests
type UpgradeExpirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// TrialExpirer ends trials past their end date
type TrialExpirer interface {
	ExpireTrials(ctx context.Context) (int, error)
}

// UsageResetJob wraps the monthly quota rollover
func UsageResetJob(svc QuotaResetter, cfg config.SchedulerConfig) Job {
	return Job{
		Name:     JobUsageReset,
		Interval: cfg.UsageResetInterval,
		Run: func(ctx context.Context) (int, error) {
			summary, err := svc.ProcessMonthlyResets(ctx)
			if summary == nil {
				return 0, err
			}
			return summary.Reset, err
		},
	}
}

// UpgradeExpiryJob wraps upgrade request expiry
func UpgradeExpiryJob(svc UpgradeExpirer, cfg config.SchedulerConfig) Job {
	return Job{Name: JobUpgradeExpiry, Interval: cfg.UpgradeExpiryInterval, Run: svc.ExpireDue}
}

// TrialExpiryJob wraps trial expiry
func TrialExpiryJob(svc TrialExpirer, cfg config.SchedulerConfig) Job {
	return Job{Name: JobTrialExpiry, Interval: cfg.TrialExpiryInterval, Run: svc.ExpireTrials}
}
