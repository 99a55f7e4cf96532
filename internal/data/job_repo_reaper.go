package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/courierd/courierd/internal/core"
	"github.com/courierd/courierd/internal/data/pgxutil"
	"github.com/courierd/courierd/internal/domain/model"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 1000 is reserved for courierd reaper operations.
const (
	advisoryLockReaperMajor       = 1000
	advisoryLockReaperTrim        = 1 // minor key for TrimJobs
	advisoryLockReaperDeleteAudit = 2 // minor key for DeleteOldAuditEntries
)

// TrimJobs deletes terminal delivery jobs on a channel beyond the newest Keep
// rows. Processes up to BatchSize jobs per call to prevent long locks and I/O
// spikes. Uses advisory locks to prevent concurrent reaper instances from
// conflicting. Returns the number of jobs deleted.
func (r *JobRepo) TrimJobs(ctx context.Context, params core.TrimJobsParams) (int64, error) {
	if !params.Channel.Valid() {
		return 0, fmt.Errorf("invalid channel: %s", params.Channel)
	}
	if params.Status != model.JobStatusCompleted && params.Status != model.JobStatusFailed {
		return 0, fmt.Errorf("status must be terminal, got: %s", params.Status)
	}
	if params.Keep < 0 {
		return 0, errors.New("keep must be >= 0")
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperTrim).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			res, err := tx.ExecContext(ctx, `
				DELETE FROM delivery_jobs
				WHERE id IN (
					SELECT id FROM delivery_jobs
					WHERE channel = $1
					  AND status = $2
					ORDER BY COALESCE(completed_at, updated_at) DESC
					OFFSET $3
					LIMIT $4
				)
			`, params.Channel, params.Status, params.Keep, params.BatchSize)
			if err != nil {
				return fmt.Errorf("trim jobs: %w", err)
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

// DeleteOldAuditEntries deletes audit log entries older than MaxAge for
// notifications that reached a terminal status. Processes up to BatchSize rows
// per call to prevent long locks and I/O spikes.
func (r *JobRepo) DeleteOldAuditEntries(ctx context.Context, params core.DeleteOldAuditEntriesParams) (int64, error) {
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	if params.MaxAge <= 0 {
		return 0, errors.New("max age must be greater than zero")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDeleteAudit).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			cutoffTime := r.timeProvider.Now().Add(-params.MaxAge).UTC()

			res, err := tx.ExecContext(ctx, `
				DELETE FROM notification_logs
				USING (
					SELECT l.ctid
					FROM notification_logs l
					JOIN notifications n ON n.id = l.notification_id
					WHERE l.created_at < $1
					  AND n.status IN ('sent', 'failed')
					ORDER BY l.created_at
					LIMIT $2
				) sub
				WHERE notification_logs.ctid = sub.ctid
			`, cutoffTime, params.BatchSize)
			if err != nil {
				return fmt.Errorf("delete old notification_logs: %w", err)
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
