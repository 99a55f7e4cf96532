package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/courierd/courierd/internal/data/pgxutil"
	"github.com/courierd/courierd/internal/domain/model"
	apperrors "github.com/courierd/courierd/internal/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultRetryBackoffBase = 2 * time.Second
	defaultMaxRetries       = 3
)

func (r *JobRepo) retryBackoffBase() time.Duration {
	if r.cfg.RetryBackoffBase > 0 {
		return r.cfg.RetryBackoffBase
	}
	return defaultRetryBackoffBase
}

func (r *JobRepo) maxRetries(requested int) int {
	if requested > 0 {
		return requested
	}
	if r.cfg.DefaultMaxRetries > 0 {
		return r.cfg.DefaultMaxRetries
	}
	return defaultMaxRetries
}

// SQL used by ReserveNext to atomically reserve the next job. Eligible jobs
// are ordered by priority first, then age.
const reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM delivery_jobs
    WHERE channel = $1 AND status = 'pending' AND scheduled_at <= $2
    ORDER BY priority DESC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE delivery_jobs j
  SET
    status = 'running',
    started_at = COALESCE(j.started_at, $3),
    lease_expires_at = $4,
    updated_at = $5
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.channel, j.status, j.priority, j.scheduled_at, j.started_at, j.completed_at, j.retry_count, j.max_retries, j.last_error, j.lease_expires_at, j.created_at, j.updated_at`

// Enqueue creates a new pending delivery job.
func (r *JobRepo) Enqueue(
	ctx context.Context,
	req *model.EnqueueJobRequest,
) (*model.DeliveryJob, error) {
	if req == nil {
		return nil, errors.New("enqueue job request is required")
	}

	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	var job *model.DeliveryJob
	if txErr := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var insertErr error
			job, insertErr = r.EnqueueInTx(ctx, tx, req)
			return insertErr
		},
	}); txErr != nil {
		return nil, txErr
	}

	return job, nil
}

// EnqueueInTx inserts a pending delivery job within an existing SQL transaction
// and notifies listeners on the channel's queue.
func (r *JobRepo) EnqueueInTx(
	ctx context.Context,
	sqlTx *sql.Tx,
	req *model.EnqueueJobRequest,
) (*model.DeliveryJob, error) {
	if sqlTx == nil {
		return nil, errors.New("transaction is required")
	}
	if req == nil {
		return nil, errors.New("enqueue job request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	query, args := r.buildInsertQuery(req)
	row := sqlTx.QueryRowContext(ctx, query, args...)

	job, scanErr := scanJobFromRow(row)
	if scanErr != nil {
		return nil, fmt.Errorf("collect job: %w", apperrors.MapDBError(scanErr))
	}

	channel := "job_added_" + string(req.Channel)
	if _, notifyErr := sqlTx.ExecContext(ctx, `SELECT pg_notify($1::text, $2::text)`, channel, job.ID); notifyErr != nil {
		return nil, fmt.Errorf("send job notification: %w", notifyErr)
	}

	return job, nil
}

// buildInsertQuery builds an INSERT statement for a delivery job based on the request.
func (r *JobRepo) buildInsertQuery(req *model.EnqueueJobRequest) (string, []any) {
	if req == nil {
		return "", nil
	}

	query := `
      INSERT INTO delivery_jobs(channel, status, priority, scheduled_at, max_retries)
      VALUES ($1,'pending',$2,$3,$4)
      RETURNING ` + jobColumns

	var scheduledAt time.Time
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	} else {
		scheduledAt = r.timeProvider.Now().UTC()
	}

	args := []any{
		req.Channel,
		req.Priority,
		scheduledAt,
		r.maxRetries(req.MaxRetries),
	}
	return query, args
}

// collectJobFromRows collects a single job from pgx rows using pgx v5 helpers.
func collectJobFromRows(rows pgx.Rows) (*model.DeliveryJob, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	lastError                              sql.NullString
	startedAt, completedAt, leaseExpiresAt sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.DeliveryJob) error {
	return scanner.Scan(
		&job.ID,
		&job.Channel,
		&job.Status,
		&job.Priority,
		&job.ScheduledAt,
		&d.startedAt,
		&d.completedAt,
		&job.RetryCount,
		&job.MaxRetries,
		&d.lastError,
		&d.leaseExpiresAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.DeliveryJob) {
	job.LastError = cloneNullableString(d.lastError)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
}

func scanJobFromRow(scanner jobRowScanner) (*model.DeliveryJob, error) {
	job := &model.DeliveryJob{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// Advisory lock namespace for requeueExpired to avoid cross-channel contention.
const advisoryLockRequeueMajor int64 = 1001

func advisoryLockRequeueMinor(channel model.Channel) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(channel))
	hashValue := h.Sum32()
	maxInt32 := uint32(math.MaxInt32)
	if hashValue > maxInt32 {
		hashValue &= maxInt32
	}
	return int64(hashValue)
}

// requeueExpired requeues expired jobs on the given channel and returns the number of jobs requeued.
func (r *JobRepo) requeueExpired(ctx context.Context, channel model.Channel) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			minorKey := advisoryLockRequeueMinor(channel)
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)", advisoryLockRequeueMajor, minorKey).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			res, err := tx.ExecContext(ctx, `
          UPDATE delivery_jobs
          SET status = 'pending', lease_expires_at = NULL
          WHERE channel = $1 AND status = 'running'
            AND lease_expires_at IS NOT NULL
            AND lease_expires_at < $2
        `, channel, currentTime.UTC())
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// ReserveNext reserves the next available job on the given channel for processing.
func (r *JobRepo) ReserveNext(
	ctx context.Context,
	channel model.Channel,
	leaseSeconds int,
) (*model.DeliveryJob, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("invalid channel: %s", channel)
	}

	if _, err := r.requeueExpired(ctx, channel); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	}

	var job *model.DeliveryJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{
			Isolation: sql.LevelReadCommitted,
			ReadOnly:  false,
		},
		Fn: func(tx pgx.Tx) error {
			currentTime := r.timeProvider.Now()
			leaseExpiresAt := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(
				ctx,
				reserveNextUpdateSQL,
				channel,
				currentTime.UTC(),
				currentTime.UTC(),
				leaseExpiresAt.UTC(),
				currentTime.UTC(),
			)
			if qerr != nil {
				return fmt.Errorf("reserve job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, err
	}
	return job, nil
}

// Heartbeat refreshes the lease on a running job.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	currentTime := r.timeProvider.Now().UTC()
	leaseExpiration := currentTime.Add(time.Duration(leaseSeconds) * time.Second)

	query := `
		UPDATE delivery_jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`

	res, err := r.DB.ExecContext(ctx, query, jobID, leaseExpiration, currentTime)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, nil
	}

	return true, nil
}

// Complete marks a job as completed successfully.
func (r *JobRepo) Complete(ctx context.Context, id string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE delivery_jobs
		SET status = 'completed',
		    completed_at = $2,
		    updated_at = $3,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'running'
	`

	res, err := r.DB.ExecContext(ctx, query, id, currentTime, currentTime)
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Fail records a failed delivery attempt. While retries remain the job goes
// back to pending with an exponentially backed-off scheduled_at; otherwise it
// is marked failed terminally.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) (*model.FailJobResult, error) {
	baseSeconds := r.retryBackoffBase().Seconds()
	currentTime := r.timeProvider.Now().UTC()

	query := `
      UPDATE delivery_jobs
      SET
        last_error = $2,
        retry_count = retry_count + 1,
        status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
        completed_at = CASE WHEN retry_count + 1 >= max_retries THEN $3::timestamptz ELSE NULL END,
        lease_expires_at = NULL,
        scheduled_at = CASE WHEN retry_count + 1 >= max_retries THEN scheduled_at
                            ELSE $3::timestamptz + make_interval(secs => $4::double precision * power(2, retry_count)) END,
        updated_at = $3
      WHERE id = $1 AND status = 'running'
      RETURNING status, scheduled_at
    `

	var status model.JobStatus
	var scheduledAt time.Time
	if err := r.DB.QueryRowContext(ctx, query, id, errMsg, currentTime, baseSeconds).Scan(&status, &scheduledAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fail job: %w", err)
	}

	result := &model.FailJobResult{
		Status:   status,
		Terminal: status == model.JobStatusFailed,
	}
	if !result.Terminal {
		next := scheduledAt.UTC()
		result.NextAttemptAt = &next
	}
	return result, nil
}

// FailPermanently marks a job as failed regardless of retries remaining.
// Used for non-retryable errors such as missing templates.
func (r *JobRepo) FailPermanently(ctx context.Context, id, errMsg string) (bool, error) {
	currentTime := r.timeProvider.Now().UTC()

	query := `
		UPDATE delivery_jobs
		SET status = 'failed',
		    last_error = $2,
		    completed_at = $3,
		    lease_expires_at = NULL,
		    updated_at = $3
		WHERE id = $1 AND status IN ('running', 'pending')
	`

	res, err := r.DB.ExecContext(ctx, query, id, errMsg, currentTime)
	if err != nil {
		return false, fmt.Errorf("fail job permanently: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("fail permanently rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Stats returns statistics about jobs on the given channel in different states.
func (r *JobRepo) Stats(ctx context.Context, channel model.Channel) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')   AS pending,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed
  FROM delivery_jobs
  WHERE channel = $1
  `, channel).Scan(
		&s.Pending,
		&s.Running,
		&s.Completed,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	return &s, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new jobs are available.
func (r *JobRepo) WaitForNotification(ctx context.Context, channel model.Channel) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	notifyChannel := "job_added_" + string(channel)
	quoted := pgx.Identifier{notifyChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a delivery job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.DeliveryJob, error) {
	var job *model.DeliveryJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM delivery_jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		job, err = collectJobFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}
