package httpx

import (
	"errors"
	"net/http"

	"github.com/courierd/courierd/internal/domain/model"
	"github.com/courierd/courierd/internal/service"
)

// QueueHandlers provides HTTP handlers for delivery queue introspection.
type QueueHandlers struct {
	Svc *service.JobService
}

// Stats handles GET /queues/{channel}/stats and returns job state counts for
// one channel queue.
func (h *QueueHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	channel := model.Channel(r.PathValue("channel"))
	if !channel.Valid() {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_channel",
			Err:     errors.New("channel must be one of email, sms, push"),
		})
		return
	}

	stats, err := h.Svc.Stats(r.Context(), channel)
	if err != nil {
		WriteMappedError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "stats_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
