package model

import (
	"errors"
	"time"
)

// JobStatus represents the current status of a delivery job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be reserved by a worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is currently being delivered.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job failed terminally.
	JobStatusFailed JobStatus = "failed"
)

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// DeliveryJob represents a durable unit of delivery work on a per-channel queue.
// The job carries scheduling state only; the notification record it delivers is
// looked up by job id when the job is reserved.
type DeliveryJob struct {
	ID             string     `json:"id"                         db:"id"`
	Channel        Channel    `json:"channel"                    db:"channel"`
	Status         JobStatus  `json:"status"                     db:"status"`
	Priority       int        `json:"priority"                   db:"priority"`
	ScheduledAt    time.Time  `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"     db:"completed_at"`
	RetryCount     int        `json:"retry_count"                db:"retry_count"`
	MaxRetries     int        `json:"max_retries"                db:"max_retries"`
	LastError      *string    `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time  `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"                 db:"updated_at"`
}

// EnqueueJobRequest represents a request to enqueue a new delivery job.
type EnqueueJobRequest struct {
	Channel     Channel    `json:"channel"`
	Priority    int        `json:"priority,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	MaxRetries  int        `json:"max_retries"`
}

// Validate validates the EnqueueJobRequest fields.
func (r *EnqueueJobRequest) Validate() error {
	if !r.Channel.Valid() {
		return errors.New("invalid channel")
	}
	if r.Priority < 0 || r.Priority > 100 {
		return errors.New("priority must be between 0 and 100")
	}
	if r.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	return nil
}

// FailJobResult reports the outcome of recording a failed delivery attempt.
// NextAttemptAt is set when the job was rescheduled for a retry.
type FailJobResult struct {
	Status        JobStatus
	Terminal      bool
	NextAttemptAt *time.Time
}

// JobStats represents statistics about delivery jobs in different states.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
