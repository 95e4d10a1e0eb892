package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/stripe"
)

type paymentEventHandler interface {
	HandlePaymentConfirmed(ctx context.Context, ref stripe.SessionRef) error
	HandlePaymentFailed(ctx context.Context, ref stripe.SessionRef) error
}

// StripeEventRouter dispatches verified stripe events to the order service.
type StripeEventRouter struct {
	payments paymentEventHandler
	logger   *slog.Logger
}

func NewStripeEventRouter(payments paymentEventHandler, logger *slog.Logger) *StripeEventRouter {
	return &StripeEventRouter{
		payments: payments,
		logger:   logger,
	}
}

func (r *StripeEventRouter) Handle(ctx context.Context, event *stripeapi.Event) error {
	span := sentry.StartSpan(
		ctx,
		"handler.stripe_router.handle",
		sentry.WithOpName("handler.stripe_router"),
		sentry.WithDescription("StripeEventRouter.Handle"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("webhook.provider", "stripe"))
	meter.Count("webhook.router.received", 1)
	fail := func(reason string, err error) error {
		observability.CountReason(ctx, "webhook.router.failed", reason)
		span.Status = sentry.SpanStatusInternalError
		return err
	}

	if event == nil {
		return fail("missing_event", fmt.Errorf("missing stripe event"))
	}
	if event.Data == nil {
		return fail("missing_event_data", fmt.Errorf("missing stripe event data"))
	}
	meter.SetAttributes(attribute.String("webhook.event_type", string(event.Type)))
	logger := logging.FromContext(ctx, r.logger).With("event_id", event.ID, "event_type", event.Type)

	var (
		ref     stripe.SessionRef
		err     error
		confirm bool
	)
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		ref, err = stripe.ParseCheckoutSession(event.Data.Raw)
		confirm = true
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		ref, err = stripe.ParseCheckoutSession(event.Data.Raw)
	case "payment_intent.payment_failed":
		ref, err = stripe.ParsePaymentIntent(event.Data.Raw)
	default:
		logger.Info("unhandled Stripe event type")
		meter.Count("webhook.router.unhandled", 1)
		span.Status = sentry.SpanStatusOK
		return nil
	}
	if err != nil {
		return fail("invalid_payload", fmt.Errorf("failed to parse %s: %w", event.Type, err))
	}

	if confirm {
		err = r.payments.HandlePaymentConfirmed(ctx, ref)
	} else {
		err = r.payments.HandlePaymentFailed(ctx, ref)
	}
	if err != nil {
		return fail("handler_failed", err)
	}

	logger.Info("processed Stripe event", "order_id", ref.OrderID, "object_id", ref.ObjectID)
	meter.Count("webhook.router.processed", 1)
	span.Status = sentry.SpanStatusOK
	return nil
}
