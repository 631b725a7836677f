// Package scheduler runs periodic maintenance jobs (decision expiry, history
// retention) on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is one maintenance pass. The returned count is logged.
type JobFunc func(ctx context.Context) (int64, error)

type job struct {
	name     string
	schedule string
	fn       JobFunc
	entryID  cron.EntryID
}

// Scheduler runs named jobs on standard five-field cron expressions.
//
// Common expressions:
//   - "* * * * *"    - Every minute
//   - "0 3 * * *"    - Daily at 3 AM
//   - "@every 30s"   - Fixed interval
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	jobs    []*job
	running bool
}

// New creates a scheduler. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		logger: logger.With("component", "scheduler"),
	}
}

// Add registers a job. An empty schedule disables the job. Jobs must be
// added before Start.
func (s *Scheduler) Add(name, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("cannot add job %q: scheduler already running", name)
	}
	if schedule == "" {
		s.logger.Info("job schedule not configured, skipping", "job", name)
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q for job %q: %w", schedule, name, err)
	}

	s.jobs = append(s.jobs, &job{name: name, schedule: schedule, fn: fn})
	return nil
}

// Start schedules every registered job and stops them all when ctx is
// cancelled. Starting with no jobs is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if len(s.jobs) == 0 {
		s.logger.Info("no jobs configured, scheduler not started")
		return nil
	}

	for _, j := range s.jobs {
		j := j
		id, err := s.cron.AddFunc(j.schedule, func() { s.run(ctx, j) })
		if err != nil {
			return fmt.Errorf("failed to schedule job %q: %w", j.name, err)
		}
		j.entryID = id
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("scheduler started", "jobs", len(s.jobs))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context, j *job) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	n, err := j.fn(ctx)
	if err != nil {
		s.logger.Error("scheduled job failed", "job", j.name, "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("scheduled job completed", "job", j.name, "affected", n, "duration", time.Since(start))
	} else {
		s.logger.Debug("scheduled job completed, nothing to do", "job", j.name)
	}
}

// RunNow executes the named job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	var target *job
	for _, j := range s.jobs {
		if j.name == name {
			target = j
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return 0, fmt.Errorf("job %q not registered", name)
	}
	return target.fn(ctx)
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		done := s.cron.Stop()
		<-done.Done()
		s.running = false
		s.logger.Info("scheduler stopped")
	}
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next run time of the named job, or nil when the job is
// unknown or the scheduler is not running.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	for _, j := range s.jobs {
		if j.name == name {
			next := s.cron.Entry(j.entryID).Next
			return &next
		}
	}
	return nil
}
