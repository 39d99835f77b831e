package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stayhive/guesthouse-reservations/internal/observability"
	"github.com/stayhive/guesthouse-reservations/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)
		if rl != nil {
			r.Use(RateLimitMiddleware(rl))
		}

		r.Group(func(r chi.Router) {
			r.Use(IdempotencyKeyMiddleware)
			r.Post("/v1/reservations", h.CreateReservation)
		})

		r.Get("/v1/reservations", h.ListReservations)
		r.Get("/v1/reservations/{id}", h.GetReservation)
		r.Patch("/v1/reservations/{id}/status", h.TransitionStatus)
		r.Post("/v1/reservations/{id}/members", h.AddMembers)
		r.Get("/v1/rooms/{id}/availability", h.GetAvailability)
	})

	r.Post("/v1/payments/callback", h.PaymentCallback)

	return r
}
