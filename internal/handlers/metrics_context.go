package handlers

import (
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/gitshopapp/storefront/internal/observability"
)

// MetricsContext puts a meter carrying the request attributes into the
// context. RequireAuth later adds user.id to the same meter.
func (h *Handlers) MetricsContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		meter := sentry.NewMeter(ctx).WithCtx(ctx)
		meter.SetAttributes(observability.RequestAttributes{
			RequestID:     requestIDFromRequest(r),
			Method:        r.Method,
			Route:         routeLabel(r),
			ClientIP:      clientIP(r),
			UserAgent:     r.UserAgent(),
			ContentLength: r.ContentLength,
		}.Builders()...)

		next.ServeHTTP(w, r.WithContext(observability.WithMeter(ctx, meter)))
	})
}
