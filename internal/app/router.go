package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AlekseyRodimkin/warehouse/internal/importer"
	"github.com/AlekseyRodimkin/warehouse/internal/observability"
	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
	"github.com/AlekseyRodimkin/warehouse/internal/wave"
	"github.com/AlekseyRodimkin/warehouse/jobs"
	"github.com/AlekseyRodimkin/warehouse/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	WarehouseHandler *warehouse.Handler
	WaveHandler      *wave.Handler
	ImportHandler    *importer.Handler
	ReportHandler    *report.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.WarehouseHandler != nil {
		r.Route("/warehouse", params.WarehouseHandler.MountRoutes)
	}
	if params.WaveHandler != nil {
		r.Route("/waves", params.WaveHandler.MountRoutes)
	}
	if params.ImportHandler != nil {
		r.Route("/imports", params.ImportHandler.MountRoutes)
	}
	if params.ReportHandler != nil {
		r.Route("/reports", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
