package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	installmentshttp "github.com/campfees/installments/internal/installments/http"
	"github.com/campfees/installments/internal/observability"
	"github.com/campfees/installments/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	InstallmentHandler *installmentshttp.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.InstallmentHandler != nil {
		r.Route("/api/v1", params.InstallmentHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

// NewAPIRouter wires the installment handler and job endpoints from the
// bootstrapped services.
func NewAPIRouter(svc *Services, jobHandler *jobs.Handler) http.Handler {
	handler := installmentshttp.NewHandler(svc.Logger, svc.Engine, svc.PassTrigger(), svc.Config.Location())
	return NewRouter(RouterParams{
		Logger:             svc.Logger,
		Config:             svc.Config,
		InstallmentHandler: handler,
		JobHandler:         jobHandler,
		Metrics:            svc.Metrics,
	})
}
