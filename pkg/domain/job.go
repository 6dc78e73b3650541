package domain

import "time"

// Job is the persisted record of one named recurring task. PausedAt set means
// the schedule won't fire it; manual runs still work.
type Job struct {
	Name         string
	PausedAt     *time.Time
	LastRunAt    *time.Time
	LastDuration time.Duration
	LastError    string
}

// Paused reports whether the job's automatic trigger is suspended
func (j *Job) Paused() bool { return j.PausedAt != nil }
