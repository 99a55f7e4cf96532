package httpx

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/courierd/courierd/internal/domain/model"
	"github.com/courierd/courierd/internal/mocks"
	"github.com/courierd/courierd/internal/service"
)

type routerMocks struct {
	jobs      *mocks.MockJobRepository
	records   *mocks.MockNotificationRepository
	templates *mocks.MockTemplateRepository
}

func newTestRouter(t *testing.T) (http.Handler, routerMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)

	m := routerMocks{
		jobs:      mocks.NewMockJobRepository(ctrl),
		records:   mocks.NewMockNotificationRepository(ctrl),
		templates: mocks.NewMockTemplateRepository(ctrl),
	}

	router := NewRouter(RouterServices{
		Dispatch: service.MustNewDispatchService(service.DispatchServiceOptions{
			DB:      &sql.DB{},
			Jobs:    stubJobEnqueuer{},
			Records: m.records,
		}),
		Jobs: service.MustNewJobService(service.JobServiceOptions{
			Repo:         m.jobs,
			DefaultLease: 30 * time.Second,
		}),
		Templates: service.MustNewTemplateService(service.TemplateServiceOptions{
			Repo: m.templates,
		}),
	})
	return router, m
}

func TestRouter_Healthz(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		r := httptest.NewRequest(method, "/healthz", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		resp := w.Result()
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, method)
		if method == http.MethodGet {
			assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
		}
	}
}

func TestRouter_QueueStatsPathParam(t *testing.T) {
	router, m := newTestRouter(t)

	m.jobs.EXPECT().
		Stats(gomock.Any(), model.ChannelSMS).
		Return(&model.JobStats{Pending: 1}, nil)

	r := httptest.NewRequest(http.MethodGet, "/queues/sms/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	resp := w.Result()
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_NotificationStatsBeatsIDRoute(t *testing.T) {
	router, m := newTestRouter(t)

	m.records.EXPECT().Stats(gomock.Any()).Return(&model.NotificationStats{}, nil)

	r := httptest.NewRequest(http.MethodGet, "/notifications/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	resp := w.Result()
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_UnknownRouteIs404(t *testing.T) {
	router, _ := newTestRouter(t)

	r := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	resp := w.Result()
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
