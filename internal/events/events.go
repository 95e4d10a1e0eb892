// Package events publishes order lifecycle events.
package events

import (
	"context"
	"time"

	"github.com/gitshopapp/storefront/internal/models"
)

const (
	SubjectOrderCreated       = "orders.created"
	SubjectOrderStatusChanged = "orders.status_changed"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
	Close()
}

type OrderCreated struct {
	OrderID       string               `json:"order_id"`
	UserID        string               `json:"user_id"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	Status        models.OrderStatus   `json:"status"`
	Total         int64                `json:"total"`
	CreatedAt     string               `json:"created_at"`
}

type OrderStatusChanged struct {
	OrderID       string               `json:"order_id"`
	UserID        string               `json:"user_id"`
	From          models.OrderStatus   `json:"from"`
	To            models.OrderStatus   `json:"to"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	ChangedAt     string               `json:"changed_at"`
}

func NewOrderCreated(order *models.Order) OrderCreated {
	return OrderCreated{
		OrderID:       order.ID,
		UserID:        order.UserID,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		Status:        order.Status,
		Total:         order.Summary.Total,
		CreatedAt:     order.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func NewOrderStatusChanged(order *models.Order, from models.OrderStatus) OrderStatusChanged {
	return OrderStatusChanged{
		OrderID:       order.ID,
		UserID:        order.UserID,
		From:          from,
		To:            order.Status,
		PaymentStatus: order.PaymentStatus,
		ChangedAt:     order.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (NoopPublisher) Close() {}
