package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Default worker pool sizes per channel.
const (
	defaultEmailConcurrency = 5
	defaultSMSConcurrency   = 3
	defaultPushConcurrency  = 3
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeEmailWorker runs the email delivery worker pool.
	ServiceModeEmailWorker ServiceMode = "email-worker"
	// ServiceModeSMSWorker runs the sms delivery worker pool.
	ServiceModeSMSWorker ServiceMode = "sms-worker"
	// ServiceModePushWorker runs the push delivery worker pool.
	ServiceModePushWorker ServiceMode = "push-worker"
	// ServiceModeReaper runs the retention reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeEmailWorker,
		ServiceModeSMSWorker,
		ServiceModePushWorker,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP,
			ServiceModeEmailWorker,
			ServiceModeSMSWorker,
			ServiceModePushWorker,
			ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, email-worker, sms-worker, push-worker, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// QueueConfig contains delivery queue configuration shared by dispatch and workers.
type QueueConfig struct {
	// MaxRetries is the delivery attempt budget per job.
	MaxRetries int `env:"QUEUE_MAX_RETRIES" envDefault:"3"`

	// RetryBackoffBase is the base delay for exponential retry backoff.
	// Attempt n is rescheduled after base * 2^n.
	RetryBackoffBase time.Duration `env:"QUEUE_RETRY_BACKOFF_BASE" envDefault:"2s"`

	// EmailPriority is the default queue priority for email jobs.
	EmailPriority int `env:"QUEUE_EMAIL_PRIORITY" envDefault:"0"`

	// SMSPriority is the default queue priority for sms jobs.
	SMSPriority int `env:"QUEUE_SMS_PRIORITY" envDefault:"0"`

	// PushPriority is the default queue priority for push jobs.
	PushPriority int `env:"QUEUE_PUSH_PRIORITY" envDefault:"0"`
}

// Sanitize applies guardrails to queue configuration values.
func (q *QueueConfig) Sanitize() {
	if q.MaxRetries < 1 {
		q.MaxRetries = 1
	}
	if q.RetryBackoffBase < time.Second {
		q.RetryBackoffBase = time.Second
	}
}

// WorkerConfig contains per-channel delivery worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"CONCURRENCY" envDefault:"0"`

	// JobLease is the duration to lease a delivery job.
	JobLease time.Duration `env:"JOB_LEASE" envDefault:"30s"`

	// SendTimeout bounds a single provider send attempt.
	SendTimeout time.Duration `env:"SEND_TIMEOUT" envDefault:"15s"`

	// DrainTimeout bounds an in-flight job during graceful shutdown. A job
	// still running at the bound is abandoned and redelivered by lease expiry.
	DrainTimeout time.Duration `env:"DRAIN_TIMEOUT" envDefault:"0"`
}

// Sanitize applies guardrails to worker configuration values.
// A zero concurrency falls back to the channel default; a zero drain timeout
// falls back to the job lease.
func (w *WorkerConfig) Sanitize(defaultConcurrency int) {
	if w.Concurrency < 1 {
		w.Concurrency = defaultConcurrency
	}
	if w.JobLease < 5*time.Second {
		w.JobLease = 5 * time.Second
	}
	if w.SendTimeout <= 0 {
		w.SendTimeout = 15 * time.Second
	}
	if w.DrainTimeout <= 0 {
		w.DrainTimeout = w.JobLease
	}
}

// ReaperConfig contains retention reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// CompletedKeep is the number of completed jobs to keep per channel.
	CompletedKeep int `env:"REAPER_COMPLETED_KEEP" envDefault:"100"`

	// FailedKeep is the number of failed jobs to keep per channel.
	FailedKeep int `env:"REAPER_FAILED_KEEP" envDefault:"50"`

	// AuditMaxAge is the maximum age for audit log entries of notifications
	// that reached a terminal status.
	AuditMaxAge time.Duration `env:"REAPER_AUDIT_MAX_AGE" envDefault:"2160h"` // 90 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.CompletedKeep < 0 {
		r.CompletedKeep = 0
	}
	if r.FailedKeep < 0 {
		r.FailedKeep = 0
	}
	if r.AuditMaxAge < 24*time.Hour {
		r.AuditMaxAge = 24 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
