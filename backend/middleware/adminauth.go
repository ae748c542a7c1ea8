package middleware

import (
	"net/http"
	"strings"

	"github.com/dbehnke/amichand/internal/adminauth"
)

// RequireAdmin gates a handler behind the configured operator-token bearer
// credential. With no token configured (gate disabled), every request is
// rejected rather than left open.
func RequireAdmin(gate *adminauth.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !gate.Enabled() {
				writeJSONError(w, http.StatusServiceUnavailable, "admin_disabled", "no admin token configured")
				return
			}
			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			tok := strings.TrimPrefix(authz, "Bearer ")
			if !gate.Authorize(tok) {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
