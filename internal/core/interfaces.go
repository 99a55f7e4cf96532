package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/courierd/courierd/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for delivery job queue operations.
type JobRepository interface {
	Enqueue(ctx context.Context, req *model.EnqueueJobRequest) (*model.DeliveryJob, error)
	GetByID(ctx context.Context, id string) (*model.DeliveryJob, error)
	ReserveNext(ctx context.Context, channel model.Channel, leaseSeconds int) (*model.DeliveryJob, error)
	WaitForNotification(ctx context.Context, channel model.Channel) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	// Fail records a failed attempt: the job is rescheduled with backoff while
	// retries remain, otherwise it is marked failed terminally.
	Fail(ctx context.Context, id, errMsg string) (*model.FailJobResult, error)
	// FailPermanently marks the job failed regardless of retries remaining and
	// without consuming an attempt. Used for non-retryable errors.
	FailPermanently(ctx context.Context, id, errMsg string) (bool, error)
	Stats(ctx context.Context, channel model.Channel) (*model.JobStats, error)
}

// JobRepositoryTx defines optional transactional job creation support.
type JobRepositoryTx interface {
	EnqueueInTx(ctx context.Context, tx *sql.Tx, req *model.EnqueueJobRequest) (*model.DeliveryJob, error)
}

// CreateNotificationParams groups parameters for creating a notification record.
type CreateNotificationParams struct {
	JobID     string
	Channel   model.Channel
	Recipient string
	Template  string
	Payload   map[string]string
}

// NotificationRepository defines the interface for notification record and
// audit log operations. Mutations are scoped by the delivery job id so worker
// updates after a lease-expiry redelivery stay consistent.
type NotificationRepository interface {
	CreateInTx(ctx context.Context, tx *sql.Tx, params CreateNotificationParams) (*model.NotificationRecord, error)
	GetByID(ctx context.Context, id string) (*model.NotificationRecord, error)
	GetByJobID(ctx context.Context, jobID string) (*model.NotificationRecord, error)
	GetWithLogs(ctx context.Context, id string) (*model.NotificationWithLogs, error)
	List(ctx context.Context, opts *model.NotificationListOptions) ([]*model.NotificationRecord, error)
	Stats(ctx context.Context) (*model.NotificationStats, error)

	// MarkProcessing transitions queued -> processing and appends the audit
	// entry. Returns false without error when the record was not in queued,
	// so redeliveries do not duplicate the transition.
	MarkProcessing(ctx context.Context, jobID string) (bool, error)
	// MarkSent records a successful delivery: status sent, provider result,
	// attempts+1, audit entry.
	MarkSent(ctx context.Context, jobID, result string) error
	// MarkFailed records a terminal delivery failure: status failed, error,
	// attempts+1, audit entry.
	MarkFailed(ctx context.Context, jobID, errMsg string) error
	// MarkFailedNoAttempt records a non-retryable failure that consumed no
	// provider attempt (template lookup failures).
	MarkFailedNoAttempt(ctx context.Context, jobID, errMsg string) error
	// MarkRetried records a failed attempt that will be retried: attempts+1
	// and a retried audit entry, status stays processing.
	MarkRetried(ctx context.Context, jobID, errMsg string) error
}

// TemplateRepository defines the interface for stored template operations.
type TemplateRepository interface {
	GetByNameAndChannel(ctx context.Context, name string, channel model.Channel) (*model.Template, error)
	List(ctx context.Context, channel model.Channel) ([]*model.Template, error)
	Upsert(ctx context.Context, tmpl *model.Template) (*model.Template, error)
}

// TemplateSource resolves templates for delivery workers. Implementations may
// cache; lookups happen on every job.
type TemplateSource interface {
	Lookup(ctx context.Context, name string, channel model.Channel) (*model.Template, error)
}

// CacheRepository defines the interface for byte-value cache operations.
// Get returns (nil, nil) on a cache miss.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
}

// TrimJobsParams groups parameters for ReaperRepository.TrimJobs to keep param count ≤3.
type TrimJobsParams struct {
	Channel   model.Channel
	Status    model.JobStatus
	Keep      int
	BatchSize int
}

// DeleteOldAuditEntriesParams groups parameters for ReaperRepository.DeleteOldAuditEntries.
type DeleteOldAuditEntriesParams struct {
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for retention cleanup operations.
type ReaperRepository interface {
	// TrimJobs deletes terminal jobs on the given channel beyond the newest
	// Keep rows. Processes up to BatchSize jobs per call to prevent long locks.
	// Returns the number of jobs deleted.
	TrimJobs(ctx context.Context, params TrimJobsParams) (int64, error)

	// DeleteOldAuditEntries deletes audit log entries older than MaxAge for
	// notifications in a terminal status. Processes up to BatchSize rows per call.
	DeleteOldAuditEntries(ctx context.Context, params DeleteOldAuditEntriesParams) (int64, error)
}
