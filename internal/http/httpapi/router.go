package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"kairopi/internal/http/handlers"
	"kairopi/internal/infra"
	"kairopi/internal/middleware"
)

// NewRouter mounts the public API. The generative endpoints sit behind the
// per-IP limiter; job status reads do not, since clients poll them.
func NewRouter(app *handlers.App) http.Handler {
	cfg := app.Config
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	// Health & docs
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPI)
	r.Get("/v1/docs", app.Docs)

	r.Route("/api", func(r chi.Router) {
		r.Post("/request-video", app.RequestVideo)
		r.Get("/video-status/{jobId}", app.VideoStatus)
		r.Get("/video-status/{jobId}/watch", app.WatchVideoStatus)
		r.Get("/card-of-the-day", app.CardOfTheDay)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))
			r.Post("/muse-brainstorm", app.MuseBrainstorm)
			r.Post("/polish-message", app.PolishMessage)
			r.Post("/generate-sticker", app.GenerateSticker)
			r.Post("/generate-backgrounds", app.GenerateBackgrounds)
			r.Post("/enhance-doodle", app.EnhanceDoodle)
		})
	})

	if cfg.ArtifactDriver == infra.DriverFilesystem && cfg.StoragePath != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StoragePath)))
		r.Handle("/static/*", fs)
	}

	return r
}
