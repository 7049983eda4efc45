package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	pulseerrs "github.com/jdholdren/pulse/internal/errors"
	"github.com/jdholdren/pulse/internal/server"
)

const apiKeyHeader = "x-api-key"

// requireAPIKeyMiddleware rejects requests whose api key header doesn't match
// key. An empty key leaves the routes open.
func requireAPIKeyMiddleware(key string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			given := r.Header.Get(apiKeyHeader)
			if subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
				slog.WarnContext(r.Context(), "rejected admin request", "has_key", given != "")
				server.WriteJSON(w, http.StatusUnauthorized, pulseerrs.E(http.StatusUnauthorized, "unauthorized"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
