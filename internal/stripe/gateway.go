// Package stripe creates hosted checkout sessions for prepaid orders.
package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
)

// minSessionLifetime is the shortest expiry Stripe accepts for a checkout
// session.
const minSessionLifetime = 30 * time.Minute

// Gateway handles checkout sessions on the platform account
type Gateway struct {
	client  *stripe.Client
	baseURL string
}

// NewGateway creates a new Stripe gateway
func NewGateway(secretKey, baseURL string) *Gateway {
	return &Gateway{
		client:  stripe.NewClient(secretKey),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// CheckoutSessionParams holds parameters for creating a checkout session.
// AmountPaise is the full order total in the smallest currency unit.
type CheckoutSessionParams struct {
	OrderID       string
	UserID        string
	Description   string
	AmountPaise   int64
	CustomerEmail string
	ExpiresAt     time.Time
}

type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// CreateCheckoutSession creates a checkout session for an order
func (g *Gateway) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if params.AmountPaise <= 0 {
		return nil, fmt.Errorf("checkout amount must be positive")
	}

	expiresAt := params.ExpiresAt
	if expiresAt.IsZero() || time.Until(expiresAt) < minSessionLifetime {
		expiresAt = time.Now().Add(minSessionLifetime)
	}

	description := params.Description
	if description == "" {
		description = fmt.Sprintf("Order %s", params.OrderID)
	}

	sessionParams := &stripe.CheckoutSessionCreateParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(g.orderURL(params.OrderID, "success")),
		CancelURL:          stripe.String(g.orderURL(params.OrderID, "cancelled")),
		ClientReferenceID:  stripe.String(params.OrderID),
		ExpiresAt:          stripe.Int64(expiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String("inr"),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
					UnitAmount: stripe.Int64(params.AmountPaise),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: map[string]string{
				"order_id": params.OrderID,
				"user_id":  params.UserID,
			},
		},
		CustomerEmail: stripe.String(params.CustomerEmail),
		Metadata: map[string]string{
			"order_id": params.OrderID,
			"user_id":  params.UserID,
		},
	}

	if params.CustomerEmail == "" {
		sessionParams.CustomerEmail = nil
	}

	sess, err := g.client.V1CheckoutSessions.Create(ctx, sessionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutSession{
		ID:        sess.ID,
		URL:       sess.URL,
		ExpiresAt: time.Unix(sess.ExpiresAt, 0).UTC(),
	}, nil
}

func (g *Gateway) orderURL(orderID, result string) string {
	return fmt.Sprintf("%s/orders/%s?payment=%s", g.baseURL, orderID, result)
}
