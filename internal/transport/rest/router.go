package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"clinicagenda/internal/auth"
	"clinicagenda/internal/observability/metrics"
	"clinicagenda/internal/service/appointments"
)

type Config struct {
	Logger         *slog.Logger
	Service        *appointments.Service
	Tokens         *auth.Tokens
	CookieName     string
	Metrics        *metrics.SchedulingMetrics
	MetricsHandler http.Handler
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP surface: public health and metrics endpoints plus
// the authenticated agenda API.
func NewRouter(cfg Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	h := NewHandler(cfg.Service, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(log, cfg.Metrics))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/agenda", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Tokens, cfg.CookieName, log))
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/slots", h.Slots)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Patch("/{id}/complete", h.MarkComplete)
		r.Delete("/{id}", h.Remove)
	})

	return otelhttp.NewHandler(r, "clinic-agenda")
}
