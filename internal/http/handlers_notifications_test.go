package httpx

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/courierd/courierd/internal/data"
	"github.com/courierd/courierd/internal/domain/model"
	"github.com/courierd/courierd/internal/mocks"
	"github.com/courierd/courierd/internal/service"
)

type stubJobEnqueuer struct{}

func (stubJobEnqueuer) EnqueueInTx(
	_ context.Context,
	_ *sql.Tx,
	_ *model.EnqueueJobRequest,
) (*model.DeliveryJob, error) {
	return nil, errors.New("not used")
}

func newNotificationHandlers(
	t *testing.T,
) (*NotificationHandlers, *mocks.MockNotificationRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	records := mocks.NewMockNotificationRepository(ctrl)
	svc := service.MustNewDispatchService(service.DispatchServiceOptions{
		DB:      &sql.DB{},
		Jobs:    stubJobEnqueuer{},
		Records: records,
	})
	return &NotificationHandlers{Svc: svc}, records
}

func TestCreateNotification_InvalidJSON(t *testing.T) {
	h, _ := newNotificationHandlers(t)

	r := httptest.NewRequest(http.MethodPost, "/notifications", bytes.NewBufferString("{bad"))
	w := httptest.NewRecorder()

	h.Create(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "invalid_json", body["error"])
}

func TestCreateNotification_ValidationFailure(t *testing.T) {
	h, _ := newNotificationHandlers(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing type", `{"to":"user@example.com","template":"welcome"}`},
		{"invalid type", `{"type":"fax","to":"user@example.com","template":"welcome"}`},
		{"missing recipient", `{"type":"email","template":"welcome"}`},
		{"missing template", `{"type":"email","to":"user@example.com"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/notifications", bytes.NewBufferString(tc.body))
			w := httptest.NewRecorder()

			h.Create(w, r)

			resp := w.Result()
			defer resp.Body.Close()
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, "validation_failed", body["error"])
		})
	}
}

func TestListNotifications(t *testing.T) {
	h, records := newNotificationHandlers(t)

	expected := []*model.NotificationRecord{
		{ID: "n-1", Channel: model.ChannelEmail, Status: model.NotificationStatusSent},
		{ID: "n-2", Channel: model.ChannelEmail, Status: model.NotificationStatusQueued},
	}
	records.EXPECT().
		List(gomock.Any(), &model.NotificationListOptions{
			Status:  model.NotificationStatusSent,
			Channel: model.ChannelEmail,
			Limit:   10,
			Offset:  5,
		}).
		Return(expected, nil)

	r := httptest.NewRequest(
		http.MethodGet,
		"/notifications?status=sent&type=email&limit=10&offset=5",
		nil,
	)
	w := httptest.NewRecorder()

	h.List(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []*model.NotificationRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, "n-1", got[0].ID)
}

func TestListNotifications_InvalidFilters(t *testing.T) {
	h, _ := newNotificationHandlers(t)

	for _, target := range []string{
		"/notifications?status=bogus",
		"/notifications?type=fax",
	} {
		r := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()

		h.List(w, r)

		resp := w.Result()
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
	}
}

func TestListNotifications_EmptyResultIsArray(t *testing.T) {
	h, records := newNotificationHandlers(t)

	records.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, nil)

	r := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	w := httptest.NewRecorder()

	h.List(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestGetNotification_Success(t *testing.T) {
	h, records := newNotificationHandlers(t)

	recordID := "4f6c4f1e-9a1a-4f57-9f64-1d55f9ec40a1"
	details := "created"
	expected := &model.NotificationWithLogs{
		NotificationRecord: model.NotificationRecord{
			ID:      recordID,
			JobID:   "4f6c4f1e-9a1a-4f57-9f64-1d55f9ec40a2",
			Channel: model.ChannelSMS,
			Status:  model.NotificationStatusSent,
		},
		Logs: []*model.AuditLogEntry{
			{ID: "l-1", NotificationID: recordID, Action: model.AuditActionCreated, Details: &details},
		},
	}
	records.EXPECT().GetWithLogs(gomock.Any(), recordID).Return(expected, nil)

	r := httptest.NewRequest(http.MethodGet, "/notifications/"+recordID, nil)
	r.SetPathValue("id", recordID)
	w := httptest.NewRecorder()

	h.Get(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got model.NotificationWithLogs
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, recordID, got.ID)
	require.Len(t, got.Logs, 1)
	assert.Equal(t, model.AuditActionCreated, got.Logs[0].Action)
}

func TestGetNotification_NotFound(t *testing.T) {
	h, records := newNotificationHandlers(t)

	missingID := "00000000-0000-0000-0000-000000000000"
	records.EXPECT().GetWithLogs(gomock.Any(), missingID).Return(nil, data.ErrNotificationNotFound)

	r := httptest.NewRequest(http.MethodGet, "/notifications/"+missingID, nil)
	r.SetPathValue("id", missingID)
	w := httptest.NewRecorder()

	h.Get(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "notification_not_found", body["error"])
}

func TestGetNotification_MalformedIDIsNotFound(t *testing.T) {
	h, _ := newNotificationHandlers(t)

	r := httptest.NewRequest(http.MethodGet, "/notifications/not-a-uuid", nil)
	r.SetPathValue("id", "not-a-uuid")
	w := httptest.NewRecorder()

	h.Get(w, r)

	resp := w.Result()
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotificationStats(t *testing.T) {
	h, records := newNotificationHandlers(t)

	records.EXPECT().
		Stats(gomock.Any()).
		Return(&model.NotificationStats{Queued: 2, Processing: 1, Sent: 7, Failed: 3}, nil)

	r := httptest.NewRequest(http.MethodGet, "/notifications/stats", nil)
	w := httptest.NewRecorder()

	h.Stats(w, r)

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"queued":2,"processing":1,"sent":7,"failed":3}`, w.Body.String())
}

func TestNotificationStats_Error(t *testing.T) {
	h, records := newNotificationHandlers(t)

	records.EXPECT().Stats(gomock.Any()).Return(nil, errors.New("db down"))

	r := httptest.NewRequest(http.MethodGet, "/notifications/stats", nil)
	w := httptest.NewRecorder()

	h.Stats(w, r)

	resp := w.Result()
	resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
