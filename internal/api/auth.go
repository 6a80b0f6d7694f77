package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

const jobsRealm = `Bearer realm="mitigate-jobs"`

// BearerAuth requires "Authorization: Bearer <token>" on the saved-job
// routes. An empty token leaves them open. Rejections are logged without
// the presented credential.
func BearerAuth(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				logger.LogAttrs(r.Context(), slog.LevelWarn, "job request rejected",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("credential_present", auth != ""),
					slog.String("request_id", middleware.GetReqID(r.Context())),
				)
				w.Header().Set("WWW-Authenticate", jobsRealm)
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
