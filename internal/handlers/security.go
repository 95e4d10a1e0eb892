package handlers

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

// SecurityHeaders sets baseline security headers for all responses.
func (h *Handlers) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Cross-Origin-Resource-Policy", "same-origin")
		headers.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		// Responses carry order and wallet data.
		headers.Set("Cache-Control", "no-store")
		if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			headers.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// CORS wraps the whole router so preflight requests are answered before
// route matching. With no allowed origins configured it is a passthrough.
func (h *Handlers) CORS(next http.Handler) http.Handler {
	origins := allowedOrigins(h.config.CORSAllowedOrigins)
	if len(origins) == 0 {
		return next
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", idempotencyKeyHeader, "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After", idempotencyReplayHdr},
		MaxAge:         600,
	}).Handler(next)
}

func allowedOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, origin := range raw {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
