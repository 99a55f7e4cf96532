package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/courierd/courierd/internal/core"
	"github.com/courierd/courierd/internal/data/pgxutil"
	"github.com/courierd/courierd/internal/domain/model"
)

// DispatchServiceOptions groups dependencies for DispatchService.
type DispatchServiceOptions struct {
	DB              *sql.DB                    // Required: database handle for the dispatch transaction
	Jobs            core.JobRepositoryTx       // Required: transactional job enqueue
	Records         core.NotificationRepository // Required: notification record repository
	MaxRetries      int                        // Optional: per-job retry budget (repository default when zero)
	ChannelPriority map[model.Channel]int      // Optional: default queue priority per channel
	Logger          *slog.Logger               // Optional: structured logger
}

// DispatchService accepts notification requests, persists the record, and
// enqueues the delivery job in a single transaction. A failed enqueue leaves
// no record behind.
type DispatchService struct {
	db              *sql.DB
	jobs            core.JobRepositoryTx
	records         core.NotificationRepository
	maxRetries      int
	channelPriority map[model.Channel]int
	logger          *slog.Logger
}

// NewDispatchService constructs a new DispatchService.
func NewDispatchService(opts DispatchServiceOptions) (*DispatchService, error) {
	if opts.DB == nil {
		return nil, errors.New("DB is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobRepositoryTx is required")
	}
	if opts.Records == nil {
		return nil, errors.New("NotificationRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "dispatch_service")
	}

	return &DispatchService{
		db:              opts.DB,
		jobs:            opts.Jobs,
		records:         opts.Records,
		maxRetries:      opts.MaxRetries,
		channelPriority: opts.ChannelPriority,
		logger:          logger,
	}, nil
}

// MustNewDispatchService constructs a new DispatchService and panics on error.
func MustNewDispatchService(opts DispatchServiceOptions) *DispatchService {
	svc, err := NewDispatchService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create DispatchService: %v", err))
	}
	return svc
}

// Dispatch validates the request, persists the notification record, and
// enqueues its delivery job. The record is returned in queued status.
func (s *DispatchService) Dispatch(
	ctx context.Context,
	req *model.DispatchRequest,
) (*model.NotificationRecord, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is required", model.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == 0 {
		priority = s.channelPriority[req.Channel]
	}

	var record *model.NotificationRecord
	err := pgxutil.WithSQLTx(ctx, s.db, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			job, err := s.jobs.EnqueueInTx(ctx, tx, &model.EnqueueJobRequest{
				Channel:     req.Channel,
				Priority:    priority,
				ScheduledAt: req.ScheduledAt,
				MaxRetries:  s.maxRetries,
			})
			if err != nil {
				return fmt.Errorf("enqueue delivery job: %w", err)
			}

			record, err = s.records.CreateInTx(ctx, tx, core.CreateNotificationParams{
				JobID:     job.ID,
				Channel:   req.Channel,
				Recipient: req.Recipient,
				Template:  req.Template,
				Payload:   req.Payload,
			})
			if err != nil {
				return fmt.Errorf("create notification record: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "notification dispatched",
			"id", record.ID,
			"job_id", record.JobID,
			"channel", record.Channel,
			"template", record.Template,
		)
	}

	return record, nil
}

// Get returns a notification record with its audit trail.
func (s *DispatchService) Get(ctx context.Context, id string) (*model.NotificationWithLogs, error) {
	rec, err := s.records.GetWithLogs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get notification %s: %w", id, err)
	}
	return rec, nil
}

// List returns notification records matching the given filters.
func (s *DispatchService) List(
	ctx context.Context,
	opts *model.NotificationListOptions,
) ([]*model.NotificationRecord, error) {
	records, err := s.records.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return records, nil
}

// Stats returns record counts grouped by status.
func (s *DispatchService) Stats(ctx context.Context) (*model.NotificationStats, error) {
	stats, err := s.records.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get notification stats: %w", err)
	}
	return stats, nil
}
