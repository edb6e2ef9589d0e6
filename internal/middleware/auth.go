package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyHeader carries the admin key
const APIKeyHeader = "X-API-Key"

// APIKeyMiddleware admits requests carrying key in X-API-Key or as a Bearer
// token. With an empty key every request is refused.
func APIKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				http.Error(w, "Admin API disabled", http.StatusForbidden)
				return
			}

			presented := r.Header.Get(APIKeyHeader)
			if presented == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					presented = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			switch {
			case presented == "":
				http.Error(w, "Unauthorized. Missing API Key", http.StatusUnauthorized)
				return
			case subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1:
				http.Error(w, "Unauthorized. Invalid API Key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
