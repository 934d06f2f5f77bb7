package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jerseyevents/ticketing/internal/observability"
	"github.com/jerseyevents/ticketing/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(RateLimitMiddleware(rl))

	r.Route("/v1/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Post("/items", h.AddCartItem)
		r.Delete("/items/{ticketTypeID}", h.RemoveCartItem)
	})

	r.Route("/v1/orders", func(r chi.Router) {
		r.With(RequireIdempotencyKey).Post("/", h.Checkout)
		r.Get("/{orderNumber}", h.GetOrder)
		r.Post("/{orderNumber}/cancel", h.CancelOrder)
		r.Post("/{orderNumber}/refund", h.RefundOrder)
	})

	r.Get("/v1/payments/return", h.PaymentReturn)
	r.Post("/v1/payments/webhook", h.PaymentWebhook)

	r.Post("/v1/tickets/validate", h.ValidateTicket)
	r.Get("/v1/fees/quote", h.FeeQuote)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
