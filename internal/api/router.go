package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/mediaq/internal/api/middleware"
	"github.com/phrazzld/mediaq/internal/service/auth"
)

// RouterDeps holds what NewRouter needs to build the admin API.
type RouterDeps struct {
	MediaJobs  *MediaJobHandler
	JWTService auth.JWTService
	Logger     *slog.Logger
}

// NewRouter creates the HTTP handler for the admin API.
func NewRouter(deps RouterDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewTraceMiddleware(deps.Logger))
	r.Use(chimiddleware.Recoverer)

	authMiddleware := middleware.NewAuthMiddleware(deps.JWTService)

	r.Route("/api/admin/media/jobs", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		r.Use(middleware.RequireAdmin)

		r.Post("/run", deps.MediaJobs.RunJobs)
		r.Post("/reclaim", deps.MediaJobs.ReclaimJobs)
		r.Get("/health", deps.MediaJobs.QueueHealth)
		r.Get("/{id}", deps.MediaJobs.GetJob)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			deps.Logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
