package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courierd/courierd/internal/core"
	"github.com/courierd/courierd/internal/domain/model"
	apperrors "github.com/courierd/courierd/internal/errors"
	"github.com/courierd/courierd/internal/testutil"
)

func createTestNotification(t *testing.T, db *sql.DB, repo *NotificationRepo, params core.CreateNotificationParams) *model.NotificationRecord {
	t.Helper()

	if params.JobID == "" {
		params.JobID = uuid.NewString()
	}
	if params.Channel == "" {
		params.Channel = model.ChannelEmail
	}
	if params.Recipient == "" {
		params.Recipient = "user@example.com"
	}
	if params.Template == "" {
		params.Template = "welcome"
	}

	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	record, err := repo.CreateInTx(context.Background(), tx, params)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return record
}

// TestNotificationRepo_CreateInTx verifies record creation and the initial audit trail.
func TestNotificationRepo_CreateInTx(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewNotificationRepo(db)
		ctx := context.Background()

		jobID := uuid.NewString()
		record := createTestNotification(t, db, repo, core.CreateNotificationParams{
			JobID:     jobID,
			Channel:   model.ChannelEmail,
			Recipient: "user@example.com",
			Template:  "welcome",
			Payload:   map[string]string{"name": "Ada"},
		})

		assert.NotEmpty(t, record.ID)
		assert.Equal(t, jobID, record.JobID)
		assert.Equal(t, model.NotificationStatusQueued, record.Status)
		assert.Equal(t, 0, record.Attempts)
		assert.Equal(t, map[string]string{"name": "Ada"}, record.Payload)

		withLogs, err := repo.GetWithLogs(ctx, record.ID)
		require.NoError(t, err)
		require.Len(t, withLogs.Logs, 2)
		assert.Equal(t, model.AuditActionCreated, withLogs.Logs[0].Action)
		assert.Equal(t, model.AuditActionQueued, withLogs.Logs[1].Action)
	})
}

// TestNotificationRepo_CreateInTxRollback verifies nothing persists when the tx aborts.
func TestNotificationRepo_CreateInTxRollback(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewNotificationRepo(db)
		ctx := context.Background()

		jobID := uuid.NewString()
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		_, err = repo.CreateInTx(ctx, tx, core.CreateNotificationParams{
			JobID:     jobID,
			Channel:   model.ChannelSMS,
			Recipient: "+15551234567",
			Template:  "otp",
		})
		require.NoError(t, err)
		require.NoError(t, tx.Rollback())

		_, err = repo.GetByJobID(ctx, jobID)
		require.ErrorIs(t, err, ErrNotificationNotFound)
	})
}

// TestNotificationRepo_DuplicateJobID verifies a second record for the same
// delivery job maps to a conflict instead of an opaque driver error.
func TestNotificationRepo_DuplicateJobID(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewNotificationRepo(db)
		ctx := context.Background()

		jobID := uuid.NewString()
		createTestNotification(t, db, repo, core.CreateNotificationParams{JobID: jobID})

		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		defer func() {
			_ = tx.Rollback()
		}()

		_, err = repo.CreateInTx(ctx, tx, core.CreateNotificationParams{
			JobID:     jobID,
			Channel:   model.ChannelEmail,
			Recipient: "user@example.com",
			Template:  "welcome",
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))
		assert.Equal(t, "job_id", apperrors.GetField(err))
	})
}

// TestNotificationRepo_Lookups covers GetByID, GetByJobID and the not-found sentinel.
func TestNotificationRepo_Lookups(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewNotificationRepo(db)
		ctx := context.Background()

		record := createTestNotification(t, db, repo, core.CreateNotificationParams{})

		byID, err := repo.GetByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.ID, byID.ID)

		byJobID, err := repo.GetByJobID(ctx, record.JobID)
		require.NoError(t, err)
		assert.Equal(t, record.ID, byJobID.ID)

		_, err = repo.GetByID(ctx, uuid.NewString())
		require.ErrorIs(t, err, ErrNotificationNotFound)

		_, err = repo.GetWithLogs(ctx, uuid.NewString())
		require.ErrorIs(t, err, ErrNotificationNotFound)
	})
}

// TestNotificationRepo_MarkProcessing verifies the queued->processing transition is idempotent.
func TestNotificationRepo_MarkProcessing(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewNotificationRepo(db)
		ctx := context.Background()

		record := createTestNotification(t, db, repo, core.CreateNotificationParams{})

		transitioned, err := repo.MarkProcessing(ctx, record.JobID)
		require.NoError(t, err)
		assert.True(t, transitioned)

		// Redelivered jobs see the record already in flight
		transitioned, err = repo.MarkProcessing(ctx, record.JobID)
		require.NoError(t, err)
		assert.False(t, transitioned)

		current, err := repo.GetByID(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, model.NotificationStatusProcessing, current.Status)
	})
}

// TestNotificationRepo_MarkSent verifies the terminal success transition.
func TestNotificationRepo_MarkSent(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewNotificationRepo(db)
		ctx := context.Background()

		record := createTestNotification(t, db, repo, core.CreateNotificationParams{})
		_, err := repo.MarkProcessing(ctx, record.JobID)
		require.NoError(t, err)

		require.NoError(t, repo.MarkSent(ctx, record.JobID, `{"message_id":"abc"}`))

		sent, err := repo.GetWithLogs(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, model.NotificationStatusSent, sent.Status)
		require.NotNil(t, sent.Result)
		assert.Equal(t, `{"message_id":"abc"}`, *sent.Result)
		assert.Nil(t, sent.Error)
		assert.Equal(t, 1, sent.Attempts)
		assert.Equal(t, model.AuditActionSent, sent.Logs[len(sent.Logs)-1].Action)
	})
}

// TestNotificationRepo_FailureTransitions contrasts MarkFailed and MarkFailedNoAttempt.
func TestNotificationRepo_FailureTransitions(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewNotificationRepo(db)
		ctx := context.Background()

		// MarkFailed counts a delivery attempt
		attempted := createTestNotification(t, db, repo, core.CreateNotificationParams{})
		require.NoError(t, repo.MarkFailed(ctx, attempted.JobID, "provider timeout"))

		failed, err := repo.GetByID(ctx, attempted.ID)
		require.NoError(t, err)
		assert.Equal(t, model.NotificationStatusFailed, failed.Status)
		assert.Equal(t, 1, failed.Attempts)
		require.NotNil(t, failed.Error)
		assert.Equal(t, "provider timeout", *failed.Error)

		// MarkFailedNoAttempt records failures that never reached a provider
		skipped := createTestNotification(t, db, repo, core.CreateNotificationParams{})
		require.NoError(t, repo.MarkFailedNoAttempt(ctx, skipped.JobID, "template not found"))

		failed, err = repo.GetByID(ctx, skipped.ID)
		require.NoError(t, err)
		assert.Equal(t, model.NotificationStatusFailed, failed.Status)
		assert.Equal(t, 0, failed.Attempts)
	})
}

// TestNotificationRepo_MarkRetried verifies retry bookkeeping keeps the status.
func TestNotificationRepo_MarkRetried(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewNotificationRepo(db)
		ctx := context.Background()

		record := createTestNotification(t, db, repo, core.CreateNotificationParams{})
		_, err := repo.MarkProcessing(ctx, record.JobID)
		require.NoError(t, err)

		require.NoError(t, repo.MarkRetried(ctx, record.JobID, "connection reset"))

		retried, err := repo.GetWithLogs(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, model.NotificationStatusProcessing, retried.Status)
		assert.Equal(t, 1, retried.Attempts)
		assert.Equal(t, model.AuditActionRetried, retried.Logs[len(retried.Logs)-1].Action)
	})
}

// TestNotificationRepo_TransitionUnknownJob verifies transitions surface the sentinel.
func TestNotificationRepo_TransitionUnknownJob(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewNotificationRepo(db)
		ctx := context.Background()

		err := repo.MarkSent(ctx, uuid.NewString(), "ok")
		require.ErrorIs(t, err, ErrNotificationNotFound)

		err = repo.MarkFailed(ctx, uuid.NewString(), "boom")
		require.ErrorIs(t, err, ErrNotificationNotFound)
	})
}

// TestNotificationRepo_List covers filters, ordering and limits.
func TestNotificationRepo_List(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewNotificationRepo(db)
		ctx := context.Background()

		emailRecord := createTestNotification(t, db, repo, core.CreateNotificationParams{Channel: model.ChannelEmail})
		smsRecord := createTestNotification(t, db, repo, core.CreateNotificationParams{
			Channel:   model.ChannelSMS,
			Recipient: "+15551234567",
			Template:  "otp",
		})
		require.NoError(t, repo.MarkSent(ctx, smsRecord.JobID, "ok"))

		all, err := repo.List(ctx, &model.NotificationListOptions{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		// Newest first
		assert.Equal(t, smsRecord.ID, all[0].ID)
		assert.Equal(t, emailRecord.ID, all[1].ID)

		queued, err := repo.List(ctx, &model.NotificationListOptions{Status: model.NotificationStatusQueued})
		require.NoError(t, err)
		require.Len(t, queued, 1)
		assert.Equal(t, emailRecord.ID, queued[0].ID)

		sms, err := repo.List(ctx, &model.NotificationListOptions{Channel: model.ChannelSMS})
		require.NoError(t, err)
		require.Len(t, sms, 1)
		assert.Equal(t, smsRecord.ID, sms[0].ID)

		limited, err := repo.List(ctx, &model.NotificationListOptions{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		_, err = repo.List(ctx, &model.NotificationListOptions{Status: "bogus"})
		require.Error(t, err)

		_, err = repo.List(ctx, &model.NotificationListOptions{Channel: "fax"})
		require.Error(t, err)
	})
}

// TestNotificationRepo_Stats verifies per-status counters.
func TestNotificationRepo_Stats(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewNotificationRepo(db)
		ctx := context.Background()

		createTestNotification(t, db, repo, core.CreateNotificationParams{})

		processing := createTestNotification(t, db, repo, core.CreateNotificationParams{})
		_, err := repo.MarkProcessing(ctx, processing.JobID)
		require.NoError(t, err)

		sent := createTestNotification(t, db, repo, core.CreateNotificationParams{})
		require.NoError(t, repo.MarkSent(ctx, sent.JobID, "ok"))

		failed := createTestNotification(t, db, repo, core.CreateNotificationParams{})
		require.NoError(t, repo.MarkFailed(ctx, failed.JobID, "boom"))

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, &model.NotificationStats{Queued: 1, Processing: 1, Sent: 1, Failed: 1}, stats)
	})
}
