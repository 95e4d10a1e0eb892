package handlers

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/gitshopapp/storefront/internal/auth"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/services"
)

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's principal in the request context.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			observability.CountReason(ctx, "auth.rejected", "missing_token")
			w.Header().Set("WWW-Authenticate", `Bearer realm="storefront"`)
			h.writeError(w, r, services.CodeUnauthorized, "Authentication required")
			return
		}
		principal, err := h.verifier.Verify(token)
		if err != nil {
			observability.CountReason(ctx, "auth.rejected", "invalid_token")
			h.loggerFromContext(ctx).Info("rejected bearer token", "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="storefront", error="invalid_token"`)
			h.writeError(w, r, services.CodeUnauthorized, "Invalid or expired token")
			return
		}

		observability.MeterFromContext(ctx).SetAttributes(attribute.String("user.id", principal.UserID))
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			hub.Scope().SetUser(sentry.User{ID: principal.UserID})
		}
		logger := h.loggerFromContext(ctx).With("user_id", principal.UserID)
		ctx = logging.WithLogger(auth.WithPrincipal(ctx, principal), logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after RequireAuth.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := auth.PrincipalFromContext(r.Context())
		if principal == nil {
			h.writeError(w, r, services.CodeUnauthorized, "Authentication required")
			return
		}
		if !principal.IsAdmin() {
			observability.MeterFromContext(r.Context()).Count("auth.forbidden", 1)
			h.writeError(w, r, services.CodeForbidden, "Admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principalFromRequest(r *http.Request) *auth.Principal {
	if principal := auth.PrincipalFromContext(r.Context()); principal != nil {
		return principal
	}
	return &auth.Principal{}
}
