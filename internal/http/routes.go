package httpx

import (
	"log/slog"
	"net/http"

	"github.com/courierd/courierd/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Dispatch  *service.DispatchService
	Jobs      *service.JobService
	Templates *service.TemplateService
	Logger    *slog.Logger // Logger for HTTP errors (optional)
}

// NewRouter creates and configures the HTTP router for the delivery API.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	notificationHandlers := &NotificationHandlers{Svc: services.Dispatch}
	queueHandlers := &QueueHandlers{Svc: services.Jobs}
	templateHandlers := &TemplateHandlers{Svc: services.Templates}

	registerNotificationRoutes(mux, notificationHandlers)
	registerQueueRoutes(mux, queueHandlers)
	registerTemplateRoutes(mux, templateHandlers)
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	return mux
}

func registerNotificationRoutes(mux *http.ServeMux, h *NotificationHandlers) {
	mux.HandleFunc("POST /notifications", h.Create)
	mux.HandleFunc("GET /notifications", h.List)
	// Register /stats before /{id} for readability; the mux prefers the more
	// specific literal pattern either way.
	mux.HandleFunc("GET /notifications/stats", h.Stats)
	mux.HandleFunc("GET /notifications/{id}", h.Get)
}

func registerQueueRoutes(mux *http.ServeMux, h *QueueHandlers) {
	mux.HandleFunc("GET /queues/{channel}/stats", h.Stats)
}

func registerTemplateRoutes(mux *http.ServeMux, h *TemplateHandlers) {
	mux.HandleFunc("GET /templates", h.List)
}
