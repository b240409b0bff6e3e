package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/logger"
)

// RequestLogger returns middleware that builds a request-scoped logger enriched
// with request_id, user_id (when set upstream), trace_id, and span_id, then
// stores it in context via logger.NewContext. Downstream code retrieves it
// with logger.FromContext(ctx).
//
// This middleware should be mounted AFTER RequestLogging (which sets
// request_id) and Tracing (which sets the OpenTelemetry span context).
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			enriched := logger.WithContext(ctx, base)
			ctx = logger.NewContext(ctx, enriched)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
