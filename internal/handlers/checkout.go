package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/services"
)

const (
	idempotencyTTL       = 24 * time.Hour
	idempotencyPending   = "pending"
	maxIdempotencyKeyLen = 128
	idempotencyReplayHdr = "Idempotent-Replayed"
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyOperation = "checkout"
)

type checkoutRequest struct {
	Items           []services.CheckoutItem `json:"items" validate:"omitempty,max=50,dive"`
	ShippingAddress *models.Address         `json:"shippingAddress" validate:"required"`
	BillingAddress  *models.Address         `json:"billingAddress"`
	PaymentMethod   models.PaymentMethod    `json:"paymentMethod" validate:"required,oneof=prepaid cod wallet"`
	CouponCode      string                  `json:"couponCode" validate:"max=64"`
	Notes           string                  `json:"notes" validate:"max=500"`
}

type previewRequest struct {
	Items      []services.CheckoutItem `json:"items" validate:"omitempty,max=50,dive"`
	CouponCode string                  `json:"couponCode" validate:"max=64"`
}

// CreateOrder handles POST /api/checkout.
func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := principalFromRequest(r)
	meter := observability.MeterFromContext(ctx)

	var body checkoutRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, services.CodeValidation, err.Error())
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		h.writeError(w, r, services.CodeValidation, "Idempotency-Key is too long")
		return
	}
	var cacheKey string
	if key != "" {
		cacheKey = cache.IdempotencyKey(idempotencyOperation, principal.UserID, key)
		if h.replayIdempotent(w, r, cacheKey) {
			return
		}
	}

	// Replays are answered before throttling.
	if !h.limiter.Allow(principal.UserID) {
		if cacheKey != "" {
			h.releaseIdempotencyKey(ctx, cacheKey)
		}
		retryAfter := h.limiter.RetryAfter(principal.UserID)
		w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(retryAfter.Seconds())))))
		meter.Count("checkout.rate_limited", 1)
		h.writeError(w, r, services.CodeRateLimited, "Too many checkout attempts, please wait and retry")
		return
	}

	req := services.CheckoutRequest{
		UserID:          principal.UserID,
		CustomerEmail:   principal.Email,
		Items:           body.Items,
		ShippingAddress: *body.ShippingAddress,
		BillingAddress:  body.BillingAddress,
		PaymentMethod:   body.PaymentMethod,
		CouponCode:      body.CouponCode,
		Notes:           body.Notes,
	}
	result, err := h.checkout.CreateOrder(ctx, req)
	if err != nil {
		if cacheKey != "" {
			h.releaseIdempotencyKey(ctx, cacheKey)
		}
		h.writeServiceError(w, r, "checkout.create_order", err)
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		h.loggerFromContext(ctx).Error("failed to encode checkout result", "error", err, "order_id", result.OrderID)
		h.writeError(w, r, services.CodeInternal, "An unexpected error occurred")
		return
	}
	if cacheKey != "" {
		if err := h.cacheProvider.Set(ctx, cacheKey, string(payload), idempotencyTTL); err != nil {
			h.loggerFromContext(ctx).Warn("failed to store idempotent response", "error", err, "order_id", result.OrderID)
		}
	}
	writeRawJSON(w, http.StatusCreated, payload)
}

// replayIdempotent claims cacheKey for this request. It writes the response
// and returns true when an earlier request already owns the key.
func (h *Handlers) replayIdempotent(w http.ResponseWriter, r *http.Request, cacheKey string) bool {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	claimed, err := h.cacheProvider.SetNX(ctx, cacheKey, idempotencyPending, idempotencyTTL)
	if err != nil {
		// Without the cache the request proceeds unprotected.
		logger.Warn("failed to claim idempotency key", "error", err)
		return false
	}
	if claimed {
		return false
	}

	stored, err := h.cacheProvider.Get(ctx, cacheKey)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return false
	case err != nil:
		logger.Warn("failed to read idempotent response", "error", err)
		return false
	case stored == idempotencyPending:
		h.writeError(w, r, codeRequestInProgress, "A request with this Idempotency-Key is still being processed")
		return true
	}

	observability.MeterFromContext(ctx).Count("checkout.idempotent_replay", 1)
	w.Header().Set(idempotencyReplayHdr, "true")
	writeRawJSON(w, http.StatusCreated, []byte(stored))
	return true
}

func (h *Handlers) releaseIdempotencyKey(ctx context.Context, cacheKey string) {
	if err := h.cacheProvider.Delete(ctx, cacheKey); err != nil {
		h.loggerFromContext(ctx).Warn("failed to release idempotency key", "error", err)
	}
}

// PreviewCheckout handles POST /api/checkout/preview.
func (h *Handlers) PreviewCheckout(w http.ResponseWriter, r *http.Request) {
	principal := principalFromRequest(r)

	var body previewRequest
	if err := decodeOptionalJSON(w, r, &body); err != nil {
		h.writeError(w, r, services.CodeValidation, err.Error())
		return
	}

	result, err := h.checkout.Preview(r.Context(), services.PreviewRequest{
		UserID:     principal.UserID,
		Items:      body.Items,
		CouponCode: body.CouponCode,
	})
	if err != nil {
		h.writeServiceError(w, r, "checkout.preview", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, result)
}
