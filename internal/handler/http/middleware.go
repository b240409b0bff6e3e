package http

import (
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/hemasoorya80-maker/stock-reservation-service/pkg/errors"
	"github.com/hemasoorya80-maker/stock-reservation-service/pkg/httputil"
)

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				ct := r.Header.Get("Content-Type")
				if ct != "" && !strings.HasPrefix(ct, "application/json") {
					httputil.WriteError(w, r, apperrors.UnsupportedMedia(), logger)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
