package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appmw "github.com/hemasoorya80-maker/stock-reservation-service/internal/middleware"
	"github.com/hemasoorya80-maker/stock-reservation-service/internal/service"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/health"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/middleware"
)

// RouterDeps bundles everything the HTTP router mounts.
type RouterDeps struct {
	Service     *service.ReservationService
	Health      *health.Handler
	RateLimiter *appmw.RateLimiter
	Idempotency *appmw.Idempotency
	Logger      *slog.Logger
	APIPrefix   string
	CORS        middleware.CORSConfig
	PprofCIDRs  []string
}

// NewRouter creates a chi router with all reservation service routes registered.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(deps.CORS))
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(deps.Logger))
	r.Use(middleware.PrometheusMetrics("reservation"))
	r.Use(middleware.Tracing("reservation"))
	r.Use(middleware.RequestLogger(deps.Logger))

	// Health check endpoints
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, deps.PprofCIDRs, deps.Logger)

	itemHandler := NewItemHandler(deps.Service, deps.Logger)
	reservationHandler := NewReservationHandler(deps.Service, deps.Logger)

	r.Route(deps.APIPrefix, func(r chi.Router) {
		r.Use(ContentTypeJSON(deps.Logger))

		// Health summary for API consumers, not rate limited.
		r.Get("/health", deps.Health.ReadinessHandler())

		// Read endpoints share the lenient limiter tier.
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.Lenient())

			r.Get("/items", itemHandler.List)
			r.Get("/items/{id}", itemHandler.Get)
			r.Get("/reservations/{id}", reservationHandler.Get)
			r.Get("/reservations/user/{userId}", reservationHandler.ListByUser)
		})

		// Mutations run behind the strict tier (with slow-down) and the
		// idempotency replay layer.
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.Strict())
			r.Use(deps.Idempotency.Middleware())

			r.Post("/items", itemHandler.Create)
			r.Post("/items/{id}/stock", itemHandler.AdjustStock)
			r.Post("/reserve", reservationHandler.Reserve)
			r.Post("/confirm", reservationHandler.Confirm)
			r.Post("/cancel", reservationHandler.Cancel)
			r.Post("/expire/run", reservationHandler.ExpireRun)
		})
	})

	return r
}
