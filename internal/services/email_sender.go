package services

import (
	"context"
	"fmt"

	"github.com/gitshopapp/storefront/internal/email"
	"github.com/gitshopapp/storefront/internal/models"
)

type OrderEmailSender interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order, paymentURL string) error
	SendOrderShipped(ctx context.Context, order *models.Order) error
	SendOrderCancelled(ctx context.Context, order *models.Order, refund int64) error
}

type ProviderOrderEmailSender struct {
	provider email.Provider
}

func NewProviderOrderEmailSender(provider email.Provider) *ProviderOrderEmailSender {
	return &ProviderOrderEmailSender{provider: provider}
}

func (s *ProviderOrderEmailSender) SendOrderConfirmation(ctx context.Context, order *models.Order, paymentURL string) error {
	return s.send(ctx, email.TemplateOrderConfirmation, order, OrderInfoOverrides{PaymentURL: paymentURL})
}

func (s *ProviderOrderEmailSender) SendOrderShipped(ctx context.Context, order *models.Order) error {
	return s.send(ctx, email.TemplateOrderShipped, order, OrderInfoOverrides{})
}

func (s *ProviderOrderEmailSender) SendOrderCancelled(ctx context.Context, order *models.Order, refund int64) error {
	return s.send(ctx, email.TemplateOrderCancelled, order, OrderInfoOverrides{RefundAmount: refund})
}

func (s *ProviderOrderEmailSender) send(ctx context.Context, templateName string, order *models.Order, overrides OrderInfoOverrides) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if s == nil || s.provider == nil {
		return fmt.Errorf("email provider is not configured")
	}
	// Orders placed without a contact address get no mail.
	if order.ContactEmail == "" && overrides.CustomerEmail == "" {
		return nil
	}
	return email.Send(ctx, s.provider, templateName, BuildOrderInfo(order, overrides))
}

type noopOrderEmailSender struct{}

func (noopOrderEmailSender) SendOrderConfirmation(context.Context, *models.Order, string) error {
	return nil
}

func (noopOrderEmailSender) SendOrderShipped(context.Context, *models.Order) error {
	return nil
}

func (noopOrderEmailSender) SendOrderCancelled(context.Context, *models.Order, int64) error {
	return nil
}
