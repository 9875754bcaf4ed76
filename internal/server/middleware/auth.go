package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// healthPath stays reachable without credentials so load balancers and
// uptime probes can watch the engine.
const healthPath = "/api/health"

// Auth returns middleware enforcing the operator API key on every route
// except the health probe and CORS preflights. Clients present the key either
// as a Bearer token or in the X-API-Key header. An empty key disables the
// check.
func Auth(apiKey string) func(http.Handler) http.Handler {
	key := []byte(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || r.Method == http.MethodOptions || r.URL.Path == healthPath {
				next.ServeHTTP(w, r)
				return
			}

			presented := presentedKey(r)
			if subtle.ConstantTimeCompare([]byte(presented), key) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="arbd"`)
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// presentedKey extracts the client's credential from Authorization: Bearer or
// X-API-Key, in that order.
func presentedKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, found := strings.Cut(auth, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
