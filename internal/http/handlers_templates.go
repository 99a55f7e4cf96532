package httpx

import (
	"errors"
	"net/http"

	"github.com/courierd/courierd/internal/domain/model"
	"github.com/courierd/courierd/internal/service"
)

// TemplateHandlers provides HTTP handlers for the template read API.
type TemplateHandlers struct {
	Svc *service.TemplateService
}

// List handles GET /templates with an optional channel filter.
func (h *TemplateHandlers) List(w http.ResponseWriter, r *http.Request) {
	var channel model.Channel
	if v := r.URL.Query().Get("channel"); v != "" {
		channel = model.Channel(v)
		if !channel.Valid() {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "invalid_channel",
				Err:     errors.New("channel must be one of email, sms, push"),
			})
			return
		}
	}

	templates, err := h.Svc.List(r.Context(), channel)
	if err != nil {
		WriteMappedError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	if templates == nil {
		templates = []*model.Template{}
	}
	WriteJSON(w, http.StatusOK, templates)
}
