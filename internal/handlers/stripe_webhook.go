package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/stripe"
)

// stripeWebhookIdempotencyTTL is how long webhook event IDs are kept for deduplication
const stripeWebhookIdempotencyTTL = 24 * time.Hour

func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if h.stripeRouter == nil || h.config.StripeWebhookSecret == "" {
		logger.Warn("stripe webhook received but payments are not configured")
		http.Error(w, "Webhook handler not configured", http.StatusServiceUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	event, err := stripe.ReadWebhookEvent(r, h.config.StripeWebhookSecret)
	if err != nil {
		reason := "unreadable_payload"
		if errors.Is(err, stripe.ErrMissingSignature) || errors.Is(err, stripe.ErrInvalidSignature) {
			reason = "invalid_signature"
		}
		observability.CountReason(r.Context(), "webhook.rejected", reason)
		logger.Warn("rejected Stripe webhook", "reason", reason, "error", err)
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}
	if event == nil || event.ID == "" {
		logger.Error("missing Stripe event ID")
		http.Error(w, "Missing event ID", http.StatusBadRequest)
		return
	}

	// The claim is released when processing fails so stripe's redelivery is
	// handled again.
	cacheKey := cache.WebhookKey("stripe", event.ID)
	claimed, err := h.cacheProvider.SetNX(ctx, cacheKey, "processed", stripeWebhookIdempotencyTTL)
	if err != nil {
		logger.Warn("failed to claim webhook event, processing without deduplication", "error", err, "event_id", event.ID)
		claimed = true
	}
	if !claimed {
		logger.Info("webhook already processed", "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.stripeRouter.Handle(ctx, event); err != nil {
		if delErr := h.cacheProvider.Delete(ctx, cacheKey); delErr != nil {
			logger.Error("failed to release webhook claim", "error", delErr, "event_id", event.ID)
		}
		logger.Error("failed to process Stripe webhook", "error", err, "type", event.Type)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
