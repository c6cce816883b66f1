// Package scheduler runs the periodic maintenance jobs: monthly quota resets,
// upgrade request expiry and trial expiry.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/subgov/backend/internal/infrastructure/config"
	"github.com/subgov/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Job is one periodic task. Run returns how many records it changed.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// RunStatus is the outcome of a job's most recent run
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusSkipped   RunStatus = "skipped"
)

// JobRun describes the last run of a job
type JobRun struct {
	Name       string        `json:"name"`
	Interval   time.Duration `json:"interval"`
	Status     RunStatus     `json:"status,omitempty"`
	Affected   int           `json:"affected"`
	Error      string        `json:"error,omitempty"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Runs       int64         `json:"runs"`
}

// Config holds scheduler settings
type Config struct {
	Enabled    bool
	JobTimeout time.Duration
	LockTTL    time.Duration
}

// ConfigFrom maps the application config section
func ConfigFrom(cfg config.SchedulerConfig) Config {
	return Config{Enabled: cfg.Enabled, JobTimeout: cfg.JobTimeout, LockTTL: cfg.LockTTL}
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{Enabled: true, JobTimeout: 5 * time.Minute, LockTTL: 5 * time.Minute}
}

// Scheduler runs each registered job on its own interval. Runs are guarded by
// a lock so only one instance executes a job at a time.
type Scheduler struct {
	config Config
	locker Locker
	logger *zap.Logger
	jobs   map[string]Job

	mu        sync.Mutex
	runs      map[string]*JobRun
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	now       func() time.Time
}

// NewScheduler creates a scheduler
func NewScheduler(cfg Config, locker Locker, logger *zap.Logger) *Scheduler {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultConfig().JobTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.JobTimeout
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Scheduler{
		config: cfg,
		locker: locker,
		logger: logger,
		jobs:   make(map[string]Job),
		runs:   make(map[string]*JobRun),
		now:    time.Now,
	}
}

// Register adds a job. Jobs cannot be added once the scheduler has started.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Interval <= 0 || job.Run == nil {
		return fmt.Errorf("%w: job %q", ErrInvalidConfig, job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return fmt.Errorf("%w: scheduler already started", ErrInvalidConfig)
	}
	s.jobs[job.Name] = job
	s.runs[job.Name] = &JobRun{Name: job.Name, Interval: job.Interval}
	return nil
}

// Start launches one loop per job. Each job runs once immediately and then on
// every interval tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Scheduler is disabled")
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	s.mu.Unlock()

	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop cancels the loops and waits for in-flight runs
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

// Trigger runs a job now, outside its schedule. It returns ErrJobLocked when
// the job is already running anywhere.
func (s *Scheduler) Trigger(ctx context.Context, name string) (JobRun, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return JobRun{}, ErrJobNotFound
	}
	run, err := s.execute(ctx, job)
	if err == nil && run.Status == RunStatusSkipped {
		err = ErrJobLocked
	}
	return run, err
}

// Status returns the last run of every job, ordered by name
func (s *Scheduler) Status() []JobRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	_, _ = s.execute(ctx, job)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Job loop stopping", zap.String("job", job.Name))
			return
		case <-ticker.C:
			_, _ = s.execute(ctx, job)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) (run JobRun, err error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler."+job.Name, telemetry.AttrJob.String(job.Name))
	defer func() { telemetry.EndSpan(span, err) }()
	log := s.logger.With(zap.String("job", job.Name))

	release, ok, err := s.locker.Acquire(ctx, job.Name, s.config.LockTTL)
	if err != nil {
		log.Error("Failed to acquire job lock", zap.Error(err))
		return s.record(job.Name, RunStatusFailed, 0, err, s.now()), err
	}
	if !ok {
		log.Debug("Job lock held elsewhere, skipping run")
		return s.record(job.Name, RunStatusSkipped, 0, nil, s.now()), nil
	}
	defer release(context.WithoutCancel(ctx))

	runCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	started := s.now()
	affected, err := s.safeRun(runCtx, job)
	if err != nil {
		log.Error("Job failed",
			zap.Error(err),
			zap.Int("affected", affected),
			zap.Duration("duration", s.now().Sub(started)))
		return s.record(job.Name, RunStatusFailed, affected, err, started), err
	}
	log.Info("Job completed",
		zap.Int("affected", affected),
		zap.Duration("duration", s.now().Sub(started)))
	return s.record(job.Name, RunStatusSucceeded, affected, nil, started), nil
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}

func (s *Scheduler) record(name string, status RunStatus, affected int, err error, started time.Time) JobRun {
	finished := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.runs[name]
	r.Status = status
	r.Affected = affected
	r.Error = ""
	if err != nil {
		r.Error = err.Error()
	}
	if status != RunStatusSkipped {
		r.StartedAt = &started
		r.FinishedAt = &finished
		r.Runs++
	}
	return *r
}
