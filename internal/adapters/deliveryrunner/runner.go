// Package deliveryrunner provides the per-channel delivery worker pool for the
// courierd system. Each runner reserves jobs on a single channel, renders the
// notification's template, and hands the message to the channel's provider.
package deliveryrunner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/courierd/courierd/internal/adapters/provider"
	"github.com/courierd/courierd/internal/core"
	"github.com/courierd/courierd/internal/data"
	"github.com/courierd/courierd/internal/domain/model"
	"github.com/courierd/courierd/internal/domain/template"
	"github.com/courierd/courierd/internal/observability/metrics"
	"github.com/courierd/courierd/internal/observability/statsd"
	"github.com/courierd/courierd/internal/service"
)

// RunnerOptions configures the delivery runner adapter.
type RunnerOptions struct {
	DB     *sql.DB
	Logger *slog.Logger

	// Delivery settings
	Channel      model.Channel // which channel to process; required
	Lease        time.Duration // per-job lease duration; defaults to 30s
	Concurrency  int           // number of worker goroutines; defaults to 1
	SendTimeout  time.Duration // per-send provider timeout; defaults to 15s
	DrainTimeout time.Duration // bound on an in-flight job once picked up; defaults to the lease

	// Queue settings, applied when the runner builds its own job repository.
	MaxRetries       int
	RetryBackoffBase time.Duration

	// Sender delivers rendered messages for this channel; required.
	Sender provider.Sender

	// Optional dependency injections (useful for tests/decoupling)
	JobsRepo    core.JobRepository
	RecordsRepo core.NotificationRepository
	Templates   core.TemplateSource
	Cache       core.CacheRepository
	CacheTTL    time.Duration
	Metrics     statsd.Sink
}

// Runner pulls delivery jobs on one channel and executes them against a provider.
type Runner struct {
	jobs         *service.JobService
	records      core.NotificationRepository
	templates    core.TemplateSource
	sender       provider.Sender
	logger       *slog.Logger
	lease        time.Duration
	sendTimeout  time.Duration
	drainTimeout time.Duration
	channel      model.Channel
	workers      int
	metrics      statsd.Sink
}

// internal wiring helpers to keep NewRunner small

type runnerDeps struct {
	jobsRepo    core.JobRepository
	recordsRepo core.NotificationRepository
	templates   core.TemplateSource
	jobSvc      *service.JobService
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func buildRunnerDeps(opts RunnerOptions, lease time.Duration) runnerDeps {
	deps := runnerDeps{}

	if opts.JobsRepo != nil {
		deps.jobsRepo = opts.JobsRepo
	} else {
		deps.jobsRepo = data.NewJobRepo(opts.DB, data.RepoConfig{
			RetryBackoffBase:  opts.RetryBackoffBase,
			DefaultMaxRetries: opts.MaxRetries,
			Logger:            opts.Logger,
		})
	}
	deps.jobSvc = service.MustNewJobService(service.JobServiceOptions{
		Repo:         deps.jobsRepo,
		DefaultLease: lease,
		Logger:       opts.Logger,
	})

	if opts.RecordsRepo != nil {
		deps.recordsRepo = opts.RecordsRepo
	} else {
		deps.recordsRepo = data.NewNotificationRepo(opts.DB)
	}

	if opts.Templates != nil {
		deps.templates = opts.Templates
	} else {
		deps.templates = service.MustNewTemplateService(service.TemplateServiceOptions{
			Repo:     data.NewTemplateRepo(opts.DB),
			Cache:    opts.Cache,
			CacheTTL: opts.CacheTTL,
			Logger:   opts.Logger,
		})
	}

	return deps
}

// NewRunner wires repositories/services and constructs a delivery runner for a
// single channel.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && (opts.JobsRepo == nil || opts.RecordsRepo == nil || opts.Templates == nil) {
		return nil, errors.New("either DB or all repository overrides must be provided")
	}
	if !opts.Channel.Valid() {
		return nil, fmt.Errorf("invalid channel %q", opts.Channel)
	}
	if opts.Sender == nil {
		return nil, errors.New("sender is required")
	}

	logger := resolveLogger(opts.Logger)

	lease := opts.Lease
	if lease <= 0 {
		lease = 30 * time.Second
	}
	sendTimeout := opts.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	drainTimeout := opts.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = lease
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}

	deps := buildRunnerDeps(opts, lease)

	return &Runner{
		jobs:         deps.jobSvc,
		records:      deps.recordsRepo,
		templates:    deps.templates,
		sender:       opts.Sender,
		logger:       logger,
		lease:        lease,
		sendTimeout:  sendTimeout,
		drainTimeout: drainTimeout,
		channel:      opts.Channel,
		workers:      workers,
		metrics:      opts.Metrics,
	}, nil
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting delivery runner",
		"channel", r.channel, "workers", r.workers, "lease", r.lease)

	group, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		group.Go(func() error { return r.workerLoop(gctx) })
	}
	return group.Wait()
}

func (r *Runner) workerLoop(ctx context.Context) error {
	// Subscribe for notifications for the channel we process
	unsub, notify := r.jobs.Subscribe(r.channel)
	defer unsub()

	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, r.channel, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForNotify(ctx, notify) {
				return ctx.Err()
			}
		default:
			return fmt.Errorf("reserve next: %w", err)
		}
	}
	return ctx.Err()
}

func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

func (r *Runner) processJob(ctx context.Context, job *model.DeliveryJob) {
	// A reserved job runs detached from the run context so a shutdown does
	// not abort a send the provider may already have accepted. The drain
	// timeout bounds the job instead; a job abandoned at the bound is
	// redelivered by lease expiry.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.drainTimeout)
	defer cancel()

	stopHB := r.startHeartbeat(ctx, job.ID)
	defer stopHB()

	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitDeliveryLifecycle(r.metrics, metrics.DeliveryMetric{
			Channel:    string(r.channel),
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	record, err := r.records.GetByJobID(ctx, job.ID)
	switch {
	case errors.Is(err, data.ErrNotificationNotFound):
		// A job without a record can never be delivered.
		msg := "no notification record for job"
		if _, ferr := r.jobs.FailPermanently(ctx, job.ID, msg); ferr != nil {
			r.logger.ErrorContext(ctx, "fail orphan job error", "job_id", job.ID, "error", ferr)
		}
		emit("failed", metrics.ResultError, err)
		return
	case err != nil:
		// Transient lookup failure: leave the lease to expire and redeliver.
		r.logger.ErrorContext(ctx, "load notification record error", "job_id", job.ID, "error", err)
		return
	}

	if record.Status == model.NotificationStatusSent {
		// Redelivery after a crash between the provider send and job completion.
		r.completeJob(ctx, job.ID, emit)
		return
	}

	if _, err := r.records.MarkProcessing(ctx, job.ID); err != nil {
		r.logger.ErrorContext(ctx, "mark processing error", "job_id", job.ID, "error", err)
		return
	}

	r.deliver(ctx, job, record, emit)
}

// startHeartbeat starts a background ticker to extend the job lease periodically.
// It returns a stop function to end the heartbeat.
func (r *Runner) startHeartbeat(ctx context.Context, jobID string) func() {
	interval := r.lease / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ok, err := r.jobs.Heartbeat(ctx, jobID, r.lease); err != nil {
					r.logger.ErrorContext(ctx, "heartbeat failed", "job_id", jobID, "error", err)
				} else if !ok {
					r.logger.WarnContext(ctx, "heartbeat not applied (job may be lost)", "job_id", jobID)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

type emitFunc func(transition, result string, err error)

func (r *Runner) deliver(
	ctx context.Context,
	job *model.DeliveryJob,
	record *model.NotificationRecord,
	emit emitFunc,
) {
	tmpl, err := r.templates.Lookup(ctx, record.Template, record.Channel)
	switch {
	case errors.Is(err, data.ErrTemplateNotFound):
		// A missing template cannot be fixed by retrying; no attempt is consumed.
		msg := fmt.Sprintf("template %q not found for channel %s", record.Template, record.Channel)
		if merr := r.records.MarkFailedNoAttempt(ctx, job.ID, msg); merr != nil {
			r.logger.ErrorContext(ctx, "mark failed error", "job_id", job.ID, "error", merr)
		}
		if _, ferr := r.jobs.FailPermanently(ctx, job.ID, msg); ferr != nil {
			r.logger.ErrorContext(ctx, "fail job permanently error", "job_id", job.ID, "error", ferr)
		}
		emit("failed", metrics.ResultError, err)
		return
	case err != nil:
		r.logger.ErrorContext(ctx, "template lookup error",
			"job_id", job.ID, "template", record.Template, "error", err)
		return
	}

	subject := ""
	if tmpl.Subject != nil {
		subject = template.Render(*tmpl.Subject, record.Payload)
	}
	body := template.Render(tmpl.Content, record.Payload)

	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	providerID, sendErr := r.sender.Send(sendCtx, provider.Message{
		Channel: record.Channel,
		To:      record.Recipient,
		Subject: subject,
		Body:    body,
	})
	cancel()

	if sendErr != nil {
		r.recordFailedAttempt(ctx, job, sendErr)
		emit("failed", metrics.ResultError, sendErr)
		return
	}

	if err := r.records.MarkSent(ctx, job.ID, providerID); err != nil {
		// The provider accepted the message; still complete the job so the
		// send is not repeated.
		r.logger.ErrorContext(ctx, "mark sent error", "job_id", job.ID, "error", err)
	}
	r.completeJob(ctx, job.ID, emit)
}

// recordFailedAttempt records a failed provider send on both the job queue and
// the notification record. The queue decides whether retries remain; the record
// transition mirrors that decision.
func (r *Runner) recordFailedAttempt(ctx context.Context, job *model.DeliveryJob, sendErr error) {
	result, err := r.jobs.Fail(ctx, job.ID, sendErr.Error())
	if err != nil {
		r.logger.ErrorContext(ctx, "fail job error",
			"job_id", job.ID, "error", err, "original_error", sendErr)
		return
	}
	if result == nil {
		// Lost the lease while sending; the redelivery owns the record now.
		return
	}

	if result.Terminal {
		if merr := r.records.MarkFailed(ctx, job.ID, sendErr.Error()); merr != nil {
			r.logger.ErrorContext(ctx, "mark failed error", "job_id", job.ID, "error", merr)
		}
		return
	}
	if merr := r.records.MarkRetried(ctx, job.ID, sendErr.Error()); merr != nil {
		r.logger.ErrorContext(ctx, "mark retried error", "job_id", job.ID, "error", merr)
	}
	r.scheduleRetryWake(result.NextAttemptAt)
}

// scheduleRetryWake wakes local subscribers once a rescheduled retry becomes
// eligible. pg_notify fires on enqueue only, so without this an idle worker
// would wait out the full listen window before seeing the retry. A wake after
// shutdown finds no subscribers and is a no-op.
func (r *Runner) scheduleRetryWake(nextAttemptAt *time.Time) {
	if nextAttemptAt == nil {
		return
	}
	delay := time.Until(*nextAttemptAt)
	if delay <= 0 {
		r.jobs.Wake(r.channel)
		return
	}
	time.AfterFunc(delay, func() { r.jobs.Wake(r.channel) })
}

func (r *Runner) completeJob(ctx context.Context, jobID string, emit emitFunc) {
	if completed, err := r.jobs.Complete(ctx, jobID); err != nil {
		r.logger.ErrorContext(ctx, "complete job error", "job_id", jobID, "error", err)
		emit("completed", metrics.ResultError, err)
	} else {
		result := metrics.ResultNoop
		if completed {
			result = metrics.ResultSuccess
		}
		emit("completed", result, nil)
	}
}
