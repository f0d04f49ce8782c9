package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-file-tree/internal/config"
	"go-file-tree/internal/handler"
	"go-file-tree/internal/metrics"
	"go-file-tree/internal/middleware"
)

type Handlers struct {
	Directory *handler.DirectoryHandler
	File      *handler.FileHandler
	Search    *handler.SearchHandler
	Trash     *handler.TrashHandler
	Usage     *handler.UsageHandler
	Jobs      *handler.JobsHandler
	Health    *handler.HealthHandler
}

// New wires the HTTP surface. JSON routes run under REQUEST_TIMEOUT; transfer
// and event routes use the streaming timeout, which keeps flushing intact.
func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, recorder *metrics.Recorder, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.RateLimitRPM/5)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging(recorder))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/health", h.Health.Health)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", recorder.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(authMiddleware.RequireAuth)
		api.Use(rateLimitMiddleware.Handler)

		api.Group(func(stream chi.Router) {
			stream.Use(middleware.StreamingTimeout(cfg.DownloadMaxDuration, cfg.DownloadIdleTimeout))

			stream.Post("/files/upload", h.File.Upload)
			stream.Get("/files/download", h.File.Download)
			stream.Get("/files/range", h.File.Range)
			stream.Get("/jobs/{job_id}/events", h.Jobs.Events)
		})

		api.Group(func(rest chi.Router) {
			rest.Use(middleware.Timeout(cfg.RequestTimeout))

			rest.Get("/files", h.Directory.List)
			rest.Delete("/files", h.File.Delete)
			rest.Put("/files/move", h.File.Move)
			rest.Get("/files/checksum", h.File.Checksum)
			rest.Post("/directories", h.Directory.Create)
			rest.Get("/search", h.Search.Search)
			rest.Get("/trash", h.Trash.List)
			rest.Post("/trash/{id}/restore", h.Trash.Restore)
			rest.Delete("/trash/{id}", h.Trash.Delete)
			rest.Get("/usage", h.Usage.Usage)
			rest.Post("/jobs/move", h.Jobs.CreateMoveJob)
			rest.Get("/jobs/{job_id}", h.Jobs.GetJob)
		})
	})

	return r
}
