package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/courierd/courierd/internal/core"
	"github.com/courierd/courierd/internal/domain/model"
	"github.com/courierd/courierd/internal/mocks"
)

type stubJobEnqueuer struct {
	enqueueFn func(ctx context.Context, tx *sql.Tx, req *model.EnqueueJobRequest) (*model.DeliveryJob, error)
}

func (s *stubJobEnqueuer) EnqueueInTx(
	ctx context.Context,
	tx *sql.Tx,
	req *model.EnqueueJobRequest,
) (*model.DeliveryJob, error) {
	if s.enqueueFn == nil {
		return &model.DeliveryJob{ID: "job-1", Channel: req.Channel}, nil
	}
	return s.enqueueFn(ctx, tx, req)
}

var _ core.JobRepositoryTx = (*stubJobEnqueuer)(nil)

func newTestDispatchService(t *testing.T, records core.NotificationRepository) *DispatchService {
	t.Helper()
	svc, err := NewDispatchService(DispatchServiceOptions{
		DB:      &sql.DB{},
		Jobs:    &stubJobEnqueuer{},
		Records: records,
	})
	require.NoError(t, err)
	return svc
}

func TestNewDispatchService(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	records := mocks.NewMockNotificationRepository(ctrl)

	t.Run("success", func(t *testing.T) {
		svc, err := NewDispatchService(DispatchServiceOptions{
			DB:      &sql.DB{},
			Jobs:    &stubJobEnqueuer{},
			Records: records,
		})
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("missing db", func(t *testing.T) {
		svc, err := NewDispatchService(DispatchServiceOptions{
			Jobs:    &stubJobEnqueuer{},
			Records: records,
		})
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.Contains(t, err.Error(), "DB is required")
	})

	t.Run("missing jobs", func(t *testing.T) {
		svc, err := NewDispatchService(DispatchServiceOptions{
			DB:      &sql.DB{},
			Records: records,
		})
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.Contains(t, err.Error(), "JobRepositoryTx is required")
	})

	t.Run("missing records", func(t *testing.T) {
		svc, err := NewDispatchService(DispatchServiceOptions{
			DB:   &sql.DB{},
			Jobs: &stubJobEnqueuer{},
		})
		require.Error(t, err)
		assert.Nil(t, svc)
		assert.Contains(t, err.Error(), "NotificationRepository is required")
	})
}

func TestDispatchService_Dispatch_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	records := mocks.NewMockNotificationRepository(ctrl)
	svc := newTestDispatchService(t, records)

	t.Run("nil request", func(t *testing.T) {
		record, err := svc.Dispatch(context.Background(), nil)
		require.Error(t, err)
		assert.Nil(t, record)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("missing channel", func(t *testing.T) {
		record, err := svc.Dispatch(context.Background(), &model.DispatchRequest{
			Recipient: "user@example.com",
			Template:  "welcome",
		})
		require.Error(t, err)
		assert.Nil(t, record)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("invalid channel", func(t *testing.T) {
		record, err := svc.Dispatch(context.Background(), &model.DispatchRequest{
			Channel:   model.Channel("fax"),
			Recipient: "user@example.com",
			Template:  "welcome",
		})
		require.Error(t, err)
		assert.Nil(t, record)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("missing recipient", func(t *testing.T) {
		record, err := svc.Dispatch(context.Background(), &model.DispatchRequest{
			Channel:  model.ChannelEmail,
			Template: "welcome",
		})
		require.Error(t, err)
		assert.Nil(t, record)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("missing template", func(t *testing.T) {
		record, err := svc.Dispatch(context.Background(), &model.DispatchRequest{
			Channel:   model.ChannelEmail,
			Recipient: "user@example.com",
		})
		require.Error(t, err)
		assert.Nil(t, record)
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestDispatchService_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	records := mocks.NewMockNotificationRepository(ctrl)
	svc := newTestDispatchService(t, records)

	expected := &model.NotificationWithLogs{
		NotificationRecord: model.NotificationRecord{ID: "n-1", Status: model.NotificationStatusSent},
		Logs: []*model.AuditLogEntry{
			{Action: model.AuditActionCreated},
			{Action: model.AuditActionSent},
		},
	}

	records.EXPECT().GetWithLogs(gomock.Any(), "n-1").Return(expected, nil)

	rec, err := svc.Get(context.Background(), "n-1")
	require.NoError(t, err)
	assert.Equal(t, expected, rec)
}

func TestDispatchService_List(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	records := mocks.NewMockNotificationRepository(ctrl)
	svc := newTestDispatchService(t, records)

	opts := &model.NotificationListOptions{Status: model.NotificationStatusQueued, Limit: 10}
	expected := []*model.NotificationRecord{{ID: "n-1"}, {ID: "n-2"}}

	records.EXPECT().List(gomock.Any(), opts).Return(expected, nil)

	result, err := svc.List(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, expected, result)
}

func TestDispatchService_Stats(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	records := mocks.NewMockNotificationRepository(ctrl)
	svc := newTestDispatchService(t, records)

	t.Run("success", func(t *testing.T) {
		expected := &model.NotificationStats{Queued: 3, Processing: 1, Sent: 20, Failed: 2}
		records.EXPECT().Stats(gomock.Any()).Return(expected, nil)

		stats, err := svc.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, expected, stats)
	})

	t.Run("repository error", func(t *testing.T) {
		records.EXPECT().Stats(gomock.Any()).Return(nil, errors.New("database error"))

		stats, err := svc.Stats(context.Background())
		require.Error(t, err)
		assert.Nil(t, stats)
		assert.Contains(t, err.Error(), "get notification stats")
	})
}
