// Package scheduler runs the recurring sweep jobs. Each named job fires on
// its own ticker after an optional start offset; run outcomes are persisted
// so operators can see when a job last ran and whether it failed.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/feedsmith/feedsmith/pkg/domain"
)

// JobStore persists job registration, pause state and run outcomes
type JobStore interface {
	RegisterJob(ctx context.Context, name string) error
	GetJob(ctx context.Context, name string) (*domain.Job, error)
	GetJobs(ctx context.Context) ([]*domain.Job, error)
	UpdateJobRun(ctx context.Context, name string, startedAt time.Time, duration time.Duration, errMsg string) error
	SetJobPaused(ctx context.Context, name string, paused bool) error
}

// JobFunc is the work a job performs on each run
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	offset   time.Duration
	fn       JobFunc
}

// Scheduler owns the set of named recurring jobs
type Scheduler struct {
	store  JobStore
	jobs   map[string]*job
	order  []string
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a scheduler backed by the given job store
func New(store JobStore) *Scheduler {
	return &Scheduler{store: store, jobs: make(map[string]*job)}
}

// AddJob registers a named job with its recurrence. The offset delays the
// first scheduled fire, staggering jobs that would otherwise start together.
// Must be called before Start.
func (s *Scheduler) AddJob(ctx context.Context, name string, interval, offset time.Duration, fn JobFunc) error {
	if interval <= 0 {
		return fmt.Errorf("job %q: interval must be positive", name)
	}
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}
	if err := s.store.RegisterJob(ctx, name); err != nil {
		return fmt.Errorf("register job: %w", err)
	}
	s.jobs[name] = &job{name: name, interval: interval, offset: offset, fn: fn}
	s.order = append(s.order, name)
	return nil
}

// Start launches one ticker loop per registered job
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	for _, name := range s.order {
		j := s.jobs[name]
		s.wg.Add(1)
		go s.runLoop(ctx, j)
	}

	lgr.Printf("[INFO] scheduler started with %d jobs", len(s.jobs))
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	lgr.Printf("[INFO] stopping scheduler...")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	lgr.Printf("[INFO] scheduler stopped")
}

func (s *Scheduler) runLoop(ctx context.Context, j *job) {
	defer s.wg.Done()

	// stagger the first fire
	if j.offset > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(j.offset):
		}
	}

	s.fireScheduled(ctx, j)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireScheduled(ctx, j)
		}
	}
}

// fireScheduled runs the job unless it is paused. Manual runs bypass this
// check, pausing only suspends the automatic trigger.
func (s *Scheduler) fireScheduled(ctx context.Context, j *job) {
	stored, err := s.store.GetJob(ctx, j.name)
	if err != nil {
		lgr.Printf("[ERROR] failed to load job %s state: %v", j.name, err)
		return
	}
	if stored.Paused() {
		lgr.Printf("[DEBUG] job %s is paused, skipping scheduled run", j.name)
		return
	}
	s.execute(ctx, j)
}

func (s *Scheduler) execute(ctx context.Context, j *job) {
	startedAt := time.Now()
	lgr.Printf("[DEBUG] job %s starting", j.name)

	runErr := j.fn(ctx)
	duration := time.Since(startedAt)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
		lgr.Printf("[WARN] job %s failed after %v: %v", j.name, duration.Round(time.Millisecond), runErr)
	} else {
		lgr.Printf("[INFO] job %s completed in %v", j.name, duration.Round(time.Millisecond))
	}

	if err := s.store.UpdateJobRun(ctx, j.name, startedAt, duration, errMsg); err != nil {
		lgr.Printf("[ERROR] failed to record job %s run: %v", j.name, err)
	}
}

// Run triggers the named job synchronously, regardless of pause state.
// Returns domain.ErrNotFound for an unknown name and the job's own error
// when the run fails; the outcome is recorded either way.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %q: %w", name, domain.ErrNotFound)
	}

	startedAt := time.Now()
	runErr := j.fn(ctx)
	duration := time.Since(startedAt)

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := s.store.UpdateJobRun(ctx, name, startedAt, duration, errMsg); err != nil {
		lgr.Printf("[ERROR] failed to record job %s run: %v", name, err)
	}

	if runErr != nil {
		return fmt.Errorf("job %q: %w", name, runErr)
	}
	return nil
}

// ListJobs returns all registered jobs with their persisted state
func (s *Scheduler) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	return s.store.GetJobs(ctx)
}

// SetPaused suspends or resumes the named job's automatic trigger
func (s *Scheduler) SetPaused(ctx context.Context, name string, paused bool) error {
	if _, ok := s.jobs[name]; !ok {
		return fmt.Errorf("job %q: %w", name, domain.ErrNotFound)
	}
	return s.store.SetJobPaused(ctx, name, paused)
}
