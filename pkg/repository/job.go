package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/feedsmith/feedsmith/pkg/domain"
)

// JobRepository handles job bookkeeping operations
type JobRepository struct {
	db *sqlx.DB
}

// jobSQL represents a job for SQL operations
type jobSQL struct {
	Name           string     `db:"name"`
	PausedAt       *time.Time `db:"paused_at"`
	LastRunAt      *time.Time `db:"last_run_at"`
	LastDurationMs int64      `db:"last_duration_ms"`
	LastError      string     `db:"last_error"`
}

// NewJobRepository creates a new job repository
func NewJobRepository(database *sqlx.DB) *JobRepository {
	return &JobRepository{db: database}
}

// RegisterJob ensures a row exists for the named job, keeping the existing
// pause and run state when it is already registered
func (r *JobRepository) RegisterJob(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO jobs (name) VALUES (?) ON CONFLICT (name) DO NOTHING", name)
	if err != nil {
		return fmt.Errorf("register job %q: %w", name, err)
	}
	return nil
}

// GetJob retrieves a job by name
func (r *JobRepository) GetJob(ctx context.Context, name string) (*domain.Job, error) {
	var sqlJob jobSQL
	err := r.db.GetContext(ctx, &sqlJob, "SELECT * FROM jobs WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return r.toDomainJob(&sqlJob), nil
}

// GetJobs retrieves all registered jobs ordered by name
func (r *JobRepository) GetJobs(ctx context.Context) ([]*domain.Job, error) {
	var sqlJobs []jobSQL
	if err := r.db.SelectContext(ctx, &sqlJobs, "SELECT * FROM jobs ORDER BY name"); err != nil {
		return nil, fmt.Errorf("get jobs: %w", err)
	}

	jobs := make([]*domain.Job, len(sqlJobs))
	for i, j := range sqlJobs {
		jobs[i] = r.toDomainJob(&j)
	}
	return jobs, nil
}

// UpdateJobRun records the outcome of a run: when it started, how long it
// took and the error message, empty on success
func (r *JobRepository) UpdateJobRun(ctx context.Context, name string, startedAt time.Time, duration time.Duration, errMsg string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE jobs SET last_run_at = ?, last_duration_ms = ?, last_error = ? WHERE name = ?",
		startedAt.UTC(), duration.Milliseconds(), errMsg, name)
	if err != nil {
		return fmt.Errorf("update job run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %q: %w", name, domain.ErrNotFound)
	}
	return nil
}

// SetJobPaused suspends or resumes the job's automatic trigger
func (r *JobRepository) SetJobPaused(ctx context.Context, name string, paused bool) error {
	query := "UPDATE jobs SET paused_at = NULL WHERE name = ?"
	if paused {
		query = "UPDATE jobs SET paused_at = datetime('now') WHERE name = ?"
	}

	result, err := r.db.ExecContext(ctx, query, name)
	if err != nil {
		return fmt.Errorf("set job paused: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("job %q: %w", name, domain.ErrNotFound)
	}
	return nil
}

// toDomainJob converts jobSQL to domain.Job
func (r *JobRepository) toDomainJob(sqlJob *jobSQL) *domain.Job {
	return &domain.Job{
		Name:         sqlJob.Name,
		PausedAt:     sqlJob.PausedAt,
		LastRunAt:    sqlJob.LastRunAt,
		LastDuration: time.Duration(sqlJob.LastDurationMs) * time.Millisecond,
		LastError:    sqlJob.LastError,
	}
}
