package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
)

// IngestAuthConfig holds webhook ingest authentication configuration
type IngestAuthConfig struct {
	// Keys is the list of valid ingest API keys from the environment.
	// An empty list disables ingest authentication.
	Keys []string
}

// IngestAuthMiddleware authenticates alert ingest requests with a static
// API key. The browser API uses JWT instead; monitoring checks posting to
// /webhook/alerts carry a key. The key list is fixed at construction.
type IngestAuthMiddleware struct {
	keys []string
}

// NewIngestAuthMiddleware creates an ingest authentication middleware
func NewIngestAuthMiddleware(config *IngestAuthConfig) *IngestAuthMiddleware {
	return &IngestAuthMiddleware{keys: config.Keys}
}

// Enabled reports whether any ingest keys are configured
func (m *IngestAuthMiddleware) Enabled() bool {
	return len(m.keys) > 0
}

// Wrap wraps an http.Handler with ingest key authentication
func (m *IngestAuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.keys) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := extractIngestKey(r)
		if key == "" {
			m.unauthorized(w, "Missing API key")
			return
		}
		if !validKey(key, m.keys) {
			log.Printf("IngestAuthMiddleware: Invalid API key attempt from %s", r.RemoteAddr)
			m.unauthorized(w, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractIngestKey reads the key from the Authorization header, the
// X-API-Key header, or the api_key query parameter.
func extractIngestKey(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		if strings.HasPrefix(authHeader, "ApiKey ") {
			return strings.TrimPrefix(authHeader, "ApiKey ")
		}
	}
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}
	return r.URL.Query().Get("api_key")
}

// validKey compares against every configured key in constant time
func validKey(provided string, keys []string) bool {
	for _, valid := range keys {
		if subtle.ConstantTimeCompare([]byte(provided), []byte(valid)) == 1 {
			return true
		}
	}
	return false
}

func (m *IngestAuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if _, err := w.Write([]byte(`{"error":"` + message + `"}`)); err != nil {
		log.Printf("Failed to write error response: %v", err)
	}
}
