// Package httpx provides HTTP handlers and utilities for the courierd delivery API.
package httpx

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/courierd/courierd/internal/data"
	"github.com/courierd/courierd/internal/domain/model"
	"github.com/courierd/courierd/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// NotificationHandlers provides HTTP handlers for notification intake and the
// read API over persisted records.
type NotificationHandlers struct {
	Svc *service.DispatchService
}

// Create handles POST /notifications: it validates the request, persists the
// record, and enqueues the delivery job.
func (h *NotificationHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req model.DispatchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	record, err := h.Svc.Dispatch(r.Context(), &req)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation_failed", Err: err})
			return
		}
		WriteMappedError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "dispatch_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusCreated, record)
}

// List handles GET /notifications with optional status/type filters and
// limit/offset pagination.
func (h *NotificationHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts := &model.NotificationListOptions{}

	if v := r.URL.Query().Get("status"); v != "" {
		status := model.NotificationStatus(v)
		if !status.Valid() {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "invalid_status",
				Err:     errors.New("status must be one of queued, processing, sent, failed"),
			})
			return
		}
		opts.Status = status
	}
	if v := r.URL.Query().Get("type"); v != "" {
		channel := model.Channel(v)
		if !channel.Valid() {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "invalid_type",
				Err:     errors.New("type must be one of email, sms, push"),
			})
			return
		}
		opts.Channel = channel
	}
	opts.Limit, opts.Offset = ParseLimitOffset(r, defaultListLimit, maxListLimit)

	records, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		WriteMappedError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	if records == nil {
		records = []*model.NotificationRecord{}
	}
	WriteJSON(w, http.StatusOK, records)
}

// Get handles GET /notifications/{id} and returns the record with its audit trail.
func (h *NotificationHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		// Invalid UUIDs can never match a record; avoid a cast error in Postgres.
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "notification_not_found",
			Err:     errors.New("notification not found"),
		})
		return
	}

	record, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, data.ErrNotificationNotFound) {
			WriteError(w, ErrorParams{
				Code:    http.StatusNotFound,
				ErrCode: "notification_not_found",
				Err:     errors.New("notification not found"),
			})
			return
		}
		WriteMappedError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "get_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, record)
}

// Stats handles GET /notifications/stats and returns record counts by status.
func (h *NotificationHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteMappedError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "stats_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
