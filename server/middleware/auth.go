package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth returns a middleware that requires apiKey in the X-API-Key header or
// as an Authorization bearer token. An empty apiKey disables the check.
func Auth(apiKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		want := []byte(apiKey)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-API-Key")
			if got == "" {
				got = bearerToken(r.Header.Get("Authorization"))
			}

			if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","status_code":401}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken returns the credentials of a Bearer authorization header. The
// scheme name is matched case-insensitively.
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
