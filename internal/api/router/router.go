package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/livhair/schedule-engine/internal/http/handlers"
	httpmiddleware "github.com/livhair/schedule-engine/internal/http/middleware"
	"github.com/livhair/schedule-engine/pkg/logging"
)

// Merge calls proxy an upstream write per request, so they get a tighter
// per-IP budget than the read endpoints.
const (
	mergeRatePerSecond = 1.0
	mergeBurst         = 5
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Schedule           *handlers.ScheduleHandler
	Session            *handlers.SessionHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.Schedule.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/schedule", func(r chi.Router) {
		r.Get("/", cfg.Schedule.Schedule)
		r.Get("/search", cfg.Schedule.Search)
	})

	r.Get("/duplicates", cfg.Schedule.Duplicates)

	r.Route("/selection", func(r chi.Router) {
		r.Get("/", cfg.Schedule.GetSelection)
		r.Put("/", cfg.Schedule.PutSelection)
		r.Delete("/", cfg.Schedule.DeleteSelection)
	})

	r.With(httpmiddleware.RateLimit(mergeRatePerSecond, mergeBurst)).
		Post("/merge", cfg.Schedule.Merge)

	r.Get("/connection", cfg.Schedule.Connection)
	r.Get("/conflicts", cfg.Schedule.Conflicts)
	r.Delete("/conflicts/{id}", cfg.Schedule.DismissConflict)
	r.Get("/pulses", cfg.Schedule.Pulses)
	r.Get("/field-options", cfg.Schedule.FieldOptions)

	if cfg.Session != nil {
		r.Route("/session/last-viewed", func(r chi.Router) {
			r.Get("/", cfg.Session.GetLastViewed)
			r.Put("/", cfg.Session.PutLastViewed)
			r.Delete("/", cfg.Session.DeleteLastViewed)
		})
		r.Get("/activity", cfg.Session.Activity)
	}

	return r
}
