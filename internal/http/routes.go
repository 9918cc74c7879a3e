package httpx

import (
	"log/slog"
	"net/http"

	apperrors "github.com/target/mmk-dataport/internal/errors"
	"github.com/target/mmk-dataport/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs *service.JobService
	// Metrics serves the Prometheus exposition format at /metrics (optional).
	Metrics http.Handler
	// HealthChecks gate /healthz (optional).
	HealthChecks []HealthCheck
	// RequesterHeader carries the requester principal; defaults to DefaultRequesterHeader.
	RequesterHeader string
	Logger          *slog.Logger // Logger for HTTP errors (optional)
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registerJobRoutes(mux, &JobHandlers{Svc: services.Jobs, Logger: logger})

	mux.Handle("GET /healthz", healthHandler(logger, services.HealthChecks...))
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}
	mux.HandleFunc("/", notFound)

	return Requester(services.RequesterHeader)(mux)
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	mux.HandleFunc("GET /api/jobs/stats", h.Stats)
	mux.HandleFunc("POST /api/{direction}/{resource}/start", h.Start)
	mux.HandleFunc("GET /api/{direction}/{resource}", h.List)
	mux.HandleFunc("GET /api/{direction}/{resource}/{id}", h.GetStatus)
	mux.HandleFunc("POST /api/{direction}/{resource}/{id}/cancel", h.Cancel)
}

// notFound answers unmatched routes with the JSON error shape used by every handler.
func notFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, ErrorBody{Error: string(apperrors.ErrCodeNotFound), Message: "Not found."})
}
