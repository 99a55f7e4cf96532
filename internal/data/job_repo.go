package data

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"
)

var (
	// ErrJobNotFound is returned when a delivery job is not found.
	ErrJobNotFound = errors.New("job not found")
)

// RepoConfig holds configuration options for the delivery job repository.
type RepoConfig struct {
	// RetryBackoffBase is the base delay for exponential retry backoff.
	// A failed attempt with n prior retries is rescheduled at now + base * 2^n.
	RetryBackoffBase time.Duration
	// DefaultMaxRetries is applied when an enqueue request leaves MaxRetries at zero.
	DefaultMaxRetries int
	Logger            *slog.Logger
	TimeProvider      TimeProvider
}

// JobRepo provides database operations for the per-channel delivery job queue.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const jobColumns = `
  id,
  channel,
  status,
  priority,
  scheduled_at,
  started_at,
  completed_at,
  retry_count,
  max_retries,
  last_error,
  lease_expires_at,
  created_at,
  updated_at
`
