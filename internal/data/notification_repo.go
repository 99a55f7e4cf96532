package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/courierd/courierd/internal/core"
	"github.com/courierd/courierd/internal/data/pgxutil"
	"github.com/courierd/courierd/internal/domain/model"
	apperrors "github.com/courierd/courierd/internal/errors"
)

const notificationColumns = `
  id,
  job_id,
  channel,
  recipient,
  template,
  payload,
  status,
  result,
  error,
  attempts,
  created_at,
  updated_at
`

// NotificationRepo provides database operations for notification records and
// their append-only audit log. All worker-side mutations are scoped by the
// delivery job id.
type NotificationRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewNotificationRepo creates a new NotificationRepo with real time provider.
func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewNotificationRepoWithTimeProvider creates a new NotificationRepo with a custom time provider (useful for tests).
func NewNotificationRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *NotificationRepo {
	return &NotificationRepo{DB: db, timeProvider: tp}
}

// CreateInTx inserts a notification record within an existing SQL transaction
// and appends the created and queued audit entries. The caller is expected to
// enqueue the delivery job in the same transaction.
func (r *NotificationRepo) CreateInTx(
	ctx context.Context,
	sqlTx *sql.Tx,
	params core.CreateNotificationParams,
) (*model.NotificationRecord, error) {
	if sqlTx == nil {
		return nil, errors.New("transaction is required")
	}
	if strings.TrimSpace(params.JobID) == "" {
		return nil, errors.New("job id is required")
	}
	if !params.Channel.Valid() {
		return nil, fmt.Errorf("invalid channel: %s", params.Channel)
	}

	payload := params.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	row := sqlTx.QueryRowContext(ctx, `
		INSERT INTO notifications (job_id, channel, recipient, template, payload, status)
		VALUES ($1, $2, $3, $4, $5, 'queued')
		RETURNING `+notificationColumns,
		params.JobID,
		params.Channel,
		params.Recipient,
		params.Template,
		payloadJSON,
	)

	rec, err := scanNotificationFromRow(row)
	if err != nil {
		return nil, fmt.Errorf("collect notification: %w", apperrors.MapDBError(err))
	}

	for _, action := range []model.AuditAction{model.AuditActionCreated, model.AuditActionQueued} {
		if _, err := sqlTx.ExecContext(ctx, `
			INSERT INTO notification_logs (notification_id, action)
			VALUES ($1, $2)
		`, rec.ID, action); err != nil {
			return nil, fmt.Errorf("append audit entry %s: %w", action, apperrors.MapDBError(err))
		}
	}

	return rec, nil
}

// GetByID retrieves a notification record by its ID.
func (r *NotificationRepo) GetByID(ctx context.Context, id string) (*model.NotificationRecord, error) {
	return r.getByQuery(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
}

// GetByJobID retrieves the notification record attached to a delivery job.
func (r *NotificationRepo) GetByJobID(ctx context.Context, jobID string) (*model.NotificationRecord, error) {
	return r.getByQuery(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE job_id = $1`, jobID)
}

func (r *NotificationRepo) getByQuery(ctx context.Context, query, arg string) (*model.NotificationRecord, error) {
	row := r.DB.QueryRowContext(ctx, query, arg)
	rec, err := scanNotificationFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", apperrors.MapDBError(err))
	}
	return rec, nil
}

// GetWithLogs retrieves a notification record together with its audit trail,
// oldest entry first.
func (r *NotificationRepo) GetWithLogs(ctx context.Context, id string) (*model.NotificationWithLogs, error) {
	rec, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, notification_id, action, details, created_at
		FROM notification_logs
		WHERE notification_id = $1
		ORDER BY created_at ASC, id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list notification logs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	logs := []*model.AuditLogEntry{}
	for rows.Next() {
		var entry model.AuditLogEntry
		var details sql.NullString
		if err := rows.Scan(&entry.ID, &entry.NotificationID, &entry.Action, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification log: %w", err)
		}
		entry.Details = cloneNullableString(details)
		logs = append(logs, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification logs: %w", err)
	}

	return &model.NotificationWithLogs{NotificationRecord: *rec, Logs: logs}, nil
}

// List retrieves notification records with optional status/channel filters,
// newest first.
func (r *NotificationRepo) List(
	ctx context.Context,
	opts *model.NotificationListOptions,
) ([]*model.NotificationRecord, error) {
	limit := 50
	offset := 0
	conditions := []string{}
	args := []any{}

	if opts != nil {
		if opts.Limit > 0 {
			limit = opts.Limit
		}
		if opts.Offset > 0 {
			offset = opts.Offset
		}
		if opts.Status != "" {
			if !opts.Status.Valid() {
				return nil, fmt.Errorf("invalid status filter: %s", opts.Status)
			}
			args = append(args, opts.Status)
			conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
		}
		if opts.Channel != "" {
			if !opts.Channel.Valid() {
				return nil, fmt.Errorf("invalid channel filter: %s", opts.Channel)
			}
			args = append(args, opts.Channel)
			conditions = append(conditions, "channel = $"+strconv.Itoa(len(args)))
		}
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args))
	args = append(args, offset)
	query += " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	records := []*model.NotificationRecord{}
	for rows.Next() {
		rec, err := scanNotificationFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return records, nil
}

// Stats returns record counts grouped by status.
func (r *NotificationRepo) Stats(ctx context.Context) (*model.NotificationStats, error) {
	var s model.NotificationStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'queued')     AS queued,
    count(*) FILTER (WHERE status = 'processing') AS processing,
    count(*) FILTER (WHERE status = 'sent')       AS sent,
    count(*) FILTER (WHERE status = 'failed')     AS failed
  FROM notifications
  `).Scan(
		&s.Queued,
		&s.Processing,
		&s.Sent,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification stats: %w", err)
	}
	return &s, nil
}

// MarkProcessing transitions a queued record to processing and appends the
// audit entry. Returns false when the record was not in queued status so a
// redelivered job does not duplicate the transition.
func (r *NotificationRepo) MarkProcessing(ctx context.Context, jobID string) (bool, error) {
	updated := false
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var id string
			err := tx.QueryRowContext(ctx, `
				UPDATE notifications
				SET status = 'processing', updated_at = $2
				WHERE job_id = $1 AND status = 'queued'
				RETURNING id
			`, jobID, r.timeProvider.Now().UTC()).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("mark processing: %w", err)
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO notification_logs (notification_id, action)
				VALUES ($1, 'processing')
			`, id); err != nil {
				return fmt.Errorf("append audit entry processing: %w", err)
			}
			updated = true
			return nil
		},
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}

// MarkSent records a successful delivery: status sent, provider result stored,
// attempts incremented, sent audit entry appended.
func (r *NotificationRepo) MarkSent(ctx context.Context, jobID, result string) error {
	return r.transition(ctx, transitionParams{
		JobID: jobID,
		SQL: `
			UPDATE notifications
			SET status = 'sent', result = $2, error = NULL, attempts = attempts + 1, updated_at = $3
			WHERE job_id = $1
			RETURNING id
		`,
		Detail: result,
		Action: model.AuditActionSent,
	})
}

// MarkFailed records a terminal delivery failure, consuming an attempt.
func (r *NotificationRepo) MarkFailed(ctx context.Context, jobID, errMsg string) error {
	return r.transition(ctx, transitionParams{
		JobID: jobID,
		SQL: `
			UPDATE notifications
			SET status = 'failed', error = $2, attempts = attempts + 1, updated_at = $3
			WHERE job_id = $1
			RETURNING id
		`,
		Detail: errMsg,
		Action: model.AuditActionFailed,
	})
}

// MarkFailedNoAttempt records a non-retryable failure that consumed no
// provider attempt, such as a missing template.
func (r *NotificationRepo) MarkFailedNoAttempt(ctx context.Context, jobID, errMsg string) error {
	return r.transition(ctx, transitionParams{
		JobID: jobID,
		SQL: `
			UPDATE notifications
			SET status = 'failed', error = $2, updated_at = $3
			WHERE job_id = $1
			RETURNING id
		`,
		Detail: errMsg,
		Action: model.AuditActionFailed,
	})
}

// MarkRetried records a failed attempt that will be retried. The record stays
// in processing; the attempt and its error are captured in the audit trail.
func (r *NotificationRepo) MarkRetried(ctx context.Context, jobID, errMsg string) error {
	return r.transition(ctx, transitionParams{
		JobID: jobID,
		SQL: `
			UPDATE notifications
			SET error = $2, attempts = attempts + 1, updated_at = $3
			WHERE job_id = $1
			RETURNING id
		`,
		Detail: errMsg,
		Action: model.AuditActionRetried,
	})
}

// transitionParams groups parameters for transition to keep param count ≤3.
type transitionParams struct {
	JobID  string
	SQL    string
	Detail string
	Action model.AuditAction
}

func (r *NotificationRepo) transition(ctx context.Context, params transitionParams) error {
	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var id string
			err := tx.QueryRowContext(ctx, params.SQL, params.JobID, params.Detail, r.timeProvider.Now().UTC()).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotificationNotFound
			}
			if err != nil {
				return fmt.Errorf("transition %s: %w", params.Action, apperrors.MapDBError(err))
			}

			var detail any
			if params.Detail != "" {
				detail = params.Detail
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO notification_logs (notification_id, action, details)
				VALUES ($1, $2, $3)
			`, id, params.Action, detail); err != nil {
				return fmt.Errorf("append audit entry %s: %w", params.Action, err)
			}
			return nil
		},
	})
}

type notificationRowScanner interface {
	Scan(dest ...any) error
}

func scanNotificationFromRow(scanner notificationRowScanner) (*model.NotificationRecord, error) {
	rec := &model.NotificationRecord{}
	var payload []byte
	var result, errMsg sql.NullString

	if err := scanner.Scan(
		&rec.ID,
		&rec.JobID,
		&rec.Channel,
		&rec.Recipient,
		&rec.Template,
		&payload,
		&rec.Status,
		&result,
		&errMsg,
		&rec.Attempts,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.Payload = map[string]string{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	rec.Result = cloneNullableString(result)
	rec.Error = cloneNullableString(errMsg)
	return rec, nil
}
