package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hlabsdev/car-reservation-system/internal/middleware"
	log "github.com/sirupsen/logrus"
)

// RouterConfig carries everything the HTTP API is built from.
type RouterConfig struct {
	Cars         *CarHandler
	Reservations *ReservationHandler
	Auth         *middleware.AuthMiddleware
	RateLimiter  *middleware.RateLimitMiddleware
	RateLimit    int
	RateWindow   time.Duration
	// Ping checks the storage backend for /health; nil means always healthy.
	Ping   func(ctx context.Context) error
	Logger log.FieldLogger
}

// NewRouter wires routes, permissions and middleware.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	r.Get("/health", Health(cfg.Ping))

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Authenticate)
		r.Use(middleware.RequestLogger(cfg.Logger))
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.RateLimit(cfg.RateLimit, cfg.RateWindow))
		}

		r.Route("/api/cars", func(r chi.Router) {
			r.Use(cfg.Auth.RequirePermission("view_cars"))
			r.Get("/", cfg.Cars.List)
			r.Get("/{id}", cfg.Cars.Get)
			r.Get("/{id}/availability", cfg.Cars.Availability)
		})

		r.Route("/api/reservations", func(r chi.Router) {
			r.With(cfg.Auth.RequirePermission("view_reservations")).Get("/", cfg.Reservations.List)
			r.With(cfg.Auth.RequirePermission("create_reservation")).Post("/", cfg.Reservations.Create)
			r.With(cfg.Auth.RequirePermission("view_reservations")).Get("/{id}", cfg.Reservations.Get)
			r.With(cfg.Auth.RequirePermission("update_reservation")).Patch("/{id}", cfg.Reservations.Update)
			r.With(cfg.Auth.RequirePermission("cancel_reservation")).Post("/{id}/cancel", cfg.Reservations.Cancel)
		})
	})

	return r
}

// Health reports liveness and, when ping is set, storage reachability.
func Health(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, codeUnavailable, "storage unreachable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
