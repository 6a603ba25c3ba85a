package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/adlens/adlens/backend/utils"
)

const AdminTokenHeader = "X-Admin-Token"

// AdminOnly guards maintenance routes. Without a configured token the routes are disabled.
func AdminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				utils.RespondError(w, http.StatusServiceUnavailable, "Maintenance endpoints are disabled")
				return
			}

			got := r.Header.Get(AdminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				utils.RespondError(w, http.StatusForbidden, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
