package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appbilling "github.com/subgov/backend/internal/application/billing"
	"github.com/subgov/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	return NewScheduler(Config{Enabled: true, JobTimeout: time.Second}, NewLocalLocker(), zap.NewNop())
}

func countingJob(name string, counter *atomic.Int64, err error) Job {
	return Job{
		Name:     name,
		Interval: time.Hour,
		Run: func(ctx context.Context) (int, error) {
			counter.Add(1)
			return 3, err
		},
	}
}

func TestRegister_Validates(t *testing.T) {
	s := newTestScheduler(t)
	assert.ErrorIs(t, s.Register(Job{Name: "x", Interval: time.Minute}), ErrInvalidConfig)
	assert.ErrorIs(t, s.Register(Job{Interval: time.Minute, Run: func(context.Context) (int, error) { return 0, nil }}), ErrInvalidConfig)
	assert.ErrorIs(t, s.Register(Job{Name: "x", Run: func(context.Context) (int, error) { return 0, nil }}), ErrInvalidConfig)
}

func TestTrigger_RecordsOutcome(t *testing.T) {
	s := newTestScheduler(t)
	var ok, bad atomic.Int64
	require.NoError(t, s.Register(countingJob("good", &ok, nil)))
	require.NoError(t, s.Register(countingJob("bad", &bad, errors.New("db down"))))

	run, err := s.Trigger(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.Equal(t, 3, run.Affected)
	assert.EqualValues(t, 1, run.Runs)
	assert.NotNil(t, run.FinishedAt)

	run, err = s.Trigger(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, "db down", run.Error)

	_, err = s.Trigger(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	status := s.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "bad", status[0].Name)
	assert.Equal(t, "good", status[1].Name)
}

func TestTrigger_LockedJobIsSkipped(t *testing.T) {
	locker := NewLocalLocker()
	s := NewScheduler(Config{Enabled: true, JobTimeout: time.Second}, locker, zap.NewNop())
	var n atomic.Int64
	require.NoError(t, s.Register(countingJob(JobUsageReset, &n, nil)))

	release, ok, err := locker.Acquire(context.Background(), JobUsageReset, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	run, err := s.Trigger(context.Background(), JobUsageReset)
	assert.ErrorIs(t, err, ErrJobLocked)
	assert.Equal(t, RunStatusSkipped, run.Status)
	assert.Zero(t, n.Load())

	release(context.Background())
	_, err = s.Trigger(context.Background(), JobUsageReset)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n.Load())
}

func TestTrigger_PanicBecomesFailure(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Register(Job{
		Name:     "panics",
		Interval: time.Hour,
		Run:      func(context.Context) (int, error) { panic("boom") },
	}))

	run, err := s.Trigger(context.Background(), "panics")
	require.Error(t, err)
	assert.Contains(t, run.Error, "job panicked: boom")

	// the lock was released despite the panic
	_, err = s.Trigger(context.Background(), "panics")
	assert.NotErrorIs(t, err, ErrJobLocked)
}

func TestTrigger_AppliesJobTimeout(t *testing.T) {
	s := NewScheduler(Config{Enabled: true, JobTimeout: 20 * time.Millisecond}, nil, zap.NewNop())
	require.NoError(t, s.Register(Job{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		},
	}))

	_, err := s.Trigger(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartStop_RunsImmediately(t *testing.T) {
	s := newTestScheduler(t)
	var n atomic.Int64
	require.NoError(t, s.Register(countingJob("tick", &n, nil)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.Register(countingJob("late", &n, nil)), ErrInvalidConfig)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestStart_Disabled(t *testing.T) {
	s := NewScheduler(Config{Enabled: false}, nil, zap.NewNop())
	var n atomic.Int64
	require.NoError(t, s.Register(countingJob("tick", &n, nil)))
	require.NoError(t, s.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, n.Load())
	require.NoError(t, s.Stop(context.Background()))
}

func TestLocalLocker_ExpiredHoldIsFree(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	stale, ok, _ := l.Acquire(context.Background(), "k", time.Minute)
	require.True(t, ok)
	_, ok, _ = l.Acquire(context.Background(), "k", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	fresh, ok, _ := l.Acquire(context.Background(), "k", time.Minute)
	require.True(t, ok)

	// releasing the stale hold must not free the new one
	stale(context.Background())
	_, ok, _ = l.Acquire(context.Background(), "k", time.Minute)
	assert.False(t, ok)
	fresh(context.Background())
	_, ok, _ = l.Acquire(context.Background(), "k", time.Minute)
	assert.True(t, ok)
}

type stubServices struct {
	summary *appbilling.ResetSummary
	err     error
}

func (s stubServices) ProcessMonthlyResets(context.Context) (*appbilling.ResetSummary, error) {
	return s.summary, s.err
}
func (s stubServices) ExpireDue(context.Context) (int, error)    { return 2, nil }
func (s stubServices) ExpireTrials(context.Context) (int, error) { return 5, nil }

func TestJobs(t *testing.T) {
	cfg := config.SchedulerConfig{
		UsageResetInterval:    time.Minute,
		UpgradeExpiryInterval: 2 * time.Minute,
		TrialExpiryInterval:   3 * time.Minute,
	}
	svc := stubServices{summary: &appbilling.ResetSummary{Claimed: 4, Reset: 3, Batches: 1}}

	reset := UsageResetJob(svc, cfg)
	assert.Equal(t, JobUsageReset, reset.Name)
	n, err := reset.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = UsageResetJob(stubServices{err: errors.New("x")}, cfg).Run(context.Background())
	assert.Error(t, err)
	assert.Zero(t, n)

	expiry := UpgradeExpiryJob(svc, cfg)
	assert.Equal(t, 2*time.Minute, expiry.Interval)
	n, _ = expiry.Run(context.Background())
	assert.Equal(t, 2, n)

	trial := TrialExpiryJob(svc, cfg)
	assert.Equal(t, JobTrialExpiry, trial.Name)
	n, _ = trial.Run(context.Background())
	assert.Equal(t, 5, n)
}
