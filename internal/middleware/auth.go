package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"shopsync-api/pkg/apierror"
)

// AuthConfig holds configuration for the admin API key middleware.
type AuthConfig struct {
	APIKeys []string
}

// NewAuthMiddleware guards read and admin routes with static API keys sent as
// X-API-Key or "Authorization: Bearer". Keys are injected, never read from
// the environment here. With no keys configured every request is refused.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if apiKey == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Use X-API-Key or Authorization: Bearer header."))
				return
			}

			if !isValidKey([]byte(apiKey), keys) {
				writeError(w, apierror.Unauthorized("Invalid API key"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// isValidKey compares key against every configured key in constant time.
func isValidKey(key []byte, validKeys [][]byte) bool {
	match := 0
	for _, valid := range validKeys {
		match |= subtle.ConstantTimeCompare(key, valid)
	}
	return match == 1
}
