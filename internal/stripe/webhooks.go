package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	stripeapi "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

var (
	ErrMissingSignature = errors.New("missing stripe signature header")
	ErrInvalidSignature = errors.New("webhook signature validation failed")
)

// ReadWebhookEvent reads the body and verifies it against the endpoint
// secret. The body must not have been consumed.
func ReadWebhookEvent(r *http.Request, secret string) (*stripeapi.Event, error) {
	if secret == "" {
		return nil, fmt.Errorf("stripe webhook secret is not configured")
	}
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		return nil, ErrMissingSignature
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return &event, nil
}

// SessionRef identifies the order a checkout session or payment intent
// belongs to.
type SessionRef struct {
	ObjectID      string
	OrderID       string
	PaymentStatus string
}

// ParseCheckoutSession extracts the order reference from a checkout session
// event object.
func ParseCheckoutSession(raw json.RawMessage) (SessionRef, error) {
	var session stripeapi.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return SessionRef{}, fmt.Errorf("invalid event object: %w", err)
	}
	if session.ID == "" {
		return SessionRef{}, fmt.Errorf("missing session ID")
	}

	orderID := session.Metadata["order_id"]
	if orderID == "" {
		orderID = session.ClientReferenceID
	}
	return SessionRef{
		ObjectID:      session.ID,
		OrderID:       orderID,
		PaymentStatus: string(session.PaymentStatus),
	}, nil
}

// ParsePaymentIntent extracts the order reference from a payment intent
// event object.
func ParsePaymentIntent(raw json.RawMessage) (SessionRef, error) {
	var intent stripeapi.PaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return SessionRef{}, fmt.Errorf("invalid event object: %w", err)
	}
	if intent.ID == "" {
		return SessionRef{}, fmt.Errorf("missing payment intent ID")
	}
	return SessionRef{
		ObjectID:      intent.ID,
		OrderID:       intent.Metadata["order_id"],
		PaymentStatus: string(intent.Status),
	}, nil
}
