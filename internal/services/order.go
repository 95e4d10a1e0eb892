package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/gitshopapp/storefront/internal/events"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/store"
	"github.com/gitshopapp/storefront/internal/stripe"
)

const (
	defaultOrderPageSize = 10
	maxOrderPageSize     = 50
)

type OrderService struct {
	store  store.Store
	events events.Publisher
	emails OrderEmailSender
	now    func() time.Time
	logger *slog.Logger
}

func NewOrderService(s store.Store, publisher events.Publisher, emails OrderEmailSender, logger *slog.Logger) *OrderService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if emails == nil {
		emails = noopOrderEmailSender{}
	}
	return &OrderService{
		store:  s,
		events: publisher,
		emails: emails,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock overrides the clock used for timeline entries.
func (s *OrderService) WithClock(now func() time.Time) *OrderService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type OrderListItem struct {
	ID            string               `json:"id"`
	Status        models.OrderStatus   `json:"status"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	Items         []models.OrderItem   `json:"items"`
	Summary       models.Summary       `json:"summary"`
	CreatedAt     time.Time            `json:"createdAt"`
}

type OrderList struct {
	Orders []OrderListItem `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// List returns the user's orders newest first. page is 1-based.
func (s *OrderService) List(ctx context.Context, userID string, status models.OrderStatus, page, limit int) (*OrderList, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(CodeUnauthorized, "Authentication required", nil)
	}
	if status != "" && !status.Valid() {
		return nil, newError(CodeValidation, fmt.Sprintf("Unknown order status %q", status), nil)
	}
	if page < 1 {
		page = 1
	}
	window := store.ClampPage(limit, 0, defaultOrderPageSize, maxOrderPageSize)
	window.Offset = (page - 1) * window.Limit

	orders, total, err := s.store.ListOrders(ctx, store.OrderFilter{
		UserID: userID,
		Status: status,
		Limit:  window.Limit,
		Offset: window.Offset,
	})
	if err != nil {
		s.loggerFromContext(ctx).Error("failed to list orders", "error", err, "user_id", userID)
		return nil, internalError(err)
	}

	items := make([]OrderListItem, 0, len(orders))
	for _, order := range orders {
		items = append(items, OrderListItem{
			ID:            order.ID,
			Status:        order.Status,
			PaymentMethod: order.PaymentMethod,
			PaymentStatus: order.PaymentStatus,
			Items:         order.Items,
			Summary:       order.Summary,
			CreatedAt:     order.CreatedAt,
		})
	}
	return &OrderList{Orders: items, Total: total, Page: page, Limit: window.Limit}, nil
}

// Get returns an order owned by userID. Orders of other users are reported
// as not found.
func (s *OrderService) Get(ctx context.Context, userID, orderID string) (*models.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(CodeUnauthorized, "Authentication required", nil)
	}
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(CodeOrderNotFound, "Order not found", err)
		}
		return nil, internalError(err)
	}
	if order.UserID != userID {
		return nil, newError(CodeOrderNotFound, "Order not found", nil)
	}
	return order, nil
}

var customerCancellable = map[models.OrderStatus]bool{
	models.StatusPendingPayment: true,
	models.StatusConfirmed:      true,
	models.StatusProcessing:     true,
}

// Cancel cancels a customer's own order before it ships.
func (s *OrderService) Cancel(ctx context.Context, userID, orderID, reason string) (*models.Order, error) {
	order, err := s.Get(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if !customerCancellable[order.Status] {
		return nil, newError(CodeInvalidTransition, fmt.Sprintf("An order that is %s can no longer be cancelled", order.Status), nil)
	}

	description := "Cancelled by customer"
	if reason = strings.TrimSpace(reason); reason != "" {
		description = fmt.Sprintf("Cancelled by customer: %s", reason)
	}
	return s.transition(ctx, orderID, TransitionRequest{Status: models.StatusCancelled, Description: description}, func(current *models.Order) error {
		if current.UserID != userID {
			return newError(CodeOrderNotFound, "Order not found", nil)
		}
		if !customerCancellable[current.Status] {
			return newError(CodeInvalidTransition, fmt.Sprintf("An order that is %s can no longer be cancelled", current.Status), nil)
		}
		return nil
	})
}

type TransitionRequest struct {
	Status         models.OrderStatus `json:"status" validate:"required,oneof=confirmed processing shipped delivered cancelled returned"`
	Description    string             `json:"description,omitempty" validate:"max=280"`
	Carrier        string             `json:"carrier,omitempty" validate:"max=64"`
	TrackingNumber string             `json:"trackingNumber,omitempty" validate:"max=64"`
}

// AdminTransition moves any order along the status machine.
func (s *OrderService) AdminTransition(ctx context.Context, orderID string, req TransitionRequest) (*models.Order, error) {
	if !req.Status.Valid() || req.Status == models.StatusPendingPayment {
		return nil, newError(CodeValidation, fmt.Sprintf("Unknown target status %q", req.Status), nil)
	}
	return s.transition(ctx, orderID, req, func(current *models.Order) error {
		if req.Status == models.StatusConfirmed && current.PaymentMethod == models.PaymentPrepaid &&
			current.PaymentStatus != models.PaymentStatusPaid {
			return newError(CodeInvalidTransition, "A prepaid order is confirmed by its payment, not manually", nil)
		}
		return nil
	})
}

// transition loads the order inside a transaction, applies the move and its
// side effects (refund, restock, COD collection, shipment details) and
// commits them with a single timeline entry.
func (s *OrderService) transition(ctx context.Context, orderID string, req TransitionRequest, guard func(current *models.Order) error) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.transition",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("Transition"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	var (
		updated *models.Order
		from    models.OrderStatus
		refund  int64
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(current); err != nil {
				return err
			}
		}

		from = current.Status
		now := s.now().UTC()
		entry, err := current.Transition(req.Status, strings.TrimSpace(req.Description), now)
		if err != nil {
			return err
		}

		switch req.Status {
		case models.StatusShipped:
			current.Carrier = NormalizeCarrierName(req.Carrier)
			current.TrackingNumber = strings.TrimSpace(req.TrackingNumber)
			current.TrackingURL = BuildTrackingURL(current.Carrier, current.TrackingNumber)
		case models.StatusDelivered:
			if current.PaymentMethod == models.PaymentCOD && current.PaymentStatus == models.PaymentStatusPending {
				current.PaymentStatus = models.PaymentStatusPaid
			}
		case models.StatusCancelled, models.StatusReturned:
			// Returned goods that shipped go back through inspection before
			// they count as stock again.
			if current.StockReserved && (req.Status == models.StatusCancelled || from != models.StatusShipped) {
				for _, item := range current.Items {
					if err := tx.ReleaseStock(ctx, item.ProductID, item.Quantity); err != nil {
						return fmt.Errorf("failed to release stock for %s: %w", item.ProductID, err)
					}
				}
				current.StockReserved = false
			}
			if current.PaymentStatus == models.PaymentStatusPaid && current.Summary.Total > 0 {
				if _, err := tx.CreditWallet(ctx, store.WalletEntry{
					UserID:      current.UserID,
					Amount:      current.Summary.Total,
					ReferenceID: current.ID,
					Description: fmt.Sprintf("Refund for order %s", current.ID),
				}); err != nil {
					return err
				}
				current.PaymentStatus = models.PaymentStatusRefunded
				refund = current.Summary.Total
			}
		}

		if err := tx.UpdateOrder(ctx, current, from, entry); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		var coded *Error
		switch {
		case errors.As(err, &coded):
			return nil, coded
		case errors.Is(err, store.ErrNotFound):
			return nil, newError(CodeOrderNotFound, "Order not found", err)
		case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, store.ErrInvalidStatusTransition):
			return nil, newError(CodeInvalidTransition, fmt.Sprintf("Order cannot move to %s", req.Status), err)
		default:
			span.Status = sentry.SpanStatusInternalError
			logger.Error("failed to transition order", "error", err, "order_id", orderID, "to", req.Status)
			return nil, internalError(err)
		}
	}

	meter.Count("order.status_changed", 1, sentry.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(updated.Status)),
	))
	if refund > 0 {
		meter.Count("wallet.refund", 1)
	}
	logger.Info("order status changed", "order_id", updated.ID, "from", from, "to", updated.Status, "refund", refund)
	s.announceTransition(ctx, updated, from, refund)
	span.Status = sentry.SpanStatusOK
	return updated, nil
}

func (s *OrderService) announceTransition(ctx context.Context, order *models.Order, from models.OrderStatus, refund int64) {
	logger := s.loggerFromContext(ctx)
	if err := s.events.Publish(ctx, events.SubjectOrderStatusChanged, events.NewOrderStatusChanged(order, from)); err != nil {
		logger.Warn("failed to publish status change", "error", err, "order_id", order.ID)
	}

	var err error
	switch order.Status {
	case models.StatusShipped:
		err = s.emails.SendOrderShipped(ctx, order)
	case models.StatusCancelled:
		err = s.emails.SendOrderCancelled(ctx, order, refund)
	}
	if err != nil {
		logger.Warn("failed to send order status email", "error", err, "order_id", order.ID, "status", order.Status)
	}
}

// HandlePaymentConfirmed settles a prepaid order after the gateway reports
// a completed checkout. Replays and late confirmations are ignored, except
// that money received for an order cancelled in the meantime is refunded to
// the wallet.
func (s *OrderService) HandlePaymentConfirmed(ctx context.Context, ref stripe.SessionRef) error {
	logger := s.loggerFromContext(ctx)

	order, err := s.orderForPayment(ctx, ref)
	if err != nil {
		return err
	}
	if ref.PaymentStatus != "" && ref.PaymentStatus != "paid" && ref.PaymentStatus != "no_payment_required" {
		logger.Info("checkout completed without payment; waiting for settlement", "order_id", order.ID, "payment_status", ref.PaymentStatus)
		return nil
	}

	var confirmed bool
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		now := s.now().UTC()

		switch {
		case current.Status == models.StatusPendingPayment && current.PaymentStatus != models.PaymentStatusPaid:
			current.PaymentStatus = models.PaymentStatusPaid
			current.PaymentReference = ref.ObjectID
			entry, err := current.Transition(models.StatusConfirmed, "Payment received", now)
			if err != nil {
				return err
			}
			confirmed = true
			return tx.UpdateOrder(ctx, current, models.StatusPendingPayment, entry)
		case current.Status == models.StatusCancelled && current.PaymentStatus != models.PaymentStatusPaid && current.PaymentStatus != models.PaymentStatusRefunded:
			if current.Summary.Total > 0 {
				if _, err := tx.CreditWallet(ctx, store.WalletEntry{
					UserID:      current.UserID,
					Amount:      current.Summary.Total,
					ReferenceID: current.ID,
					Description: fmt.Sprintf("Refund for late payment on cancelled order %s", current.ID),
				}); err != nil {
					return err
				}
			}
			current.PaymentStatus = models.PaymentStatusRefunded
			current.UpdatedAt = now
			logger.Info("payment received for cancelled order; refunded to wallet", "order_id", current.ID)
			return tx.UpdateOrder(ctx, current, models.StatusCancelled)
		default:
			logger.Info("ignoring payment confirmation due to order state", "order_id", current.ID, "status", current.Status, "payment_status", current.PaymentStatus)
			return nil
		}
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidStatusTransition) {
			logger.Info("ignoring payment confirmation due to state transition", "order_id", order.ID, "error", err)
			return nil
		}
		return fmt.Errorf("failed to confirm payment for order %s: %w", order.ID, err)
	}

	if confirmed {
		observability.MeterFromContext(ctx).Count("payment.confirmed", 1)
		updated, getErr := s.store.GetOrder(ctx, order.ID)
		if getErr == nil {
			s.announceTransition(ctx, updated, models.StatusPendingPayment, 0)
		}
	}
	return nil
}

// HandlePaymentFailed records a failed or expired payment attempt. The order
// stays pending_payment so the customer can retry.
func (s *OrderService) HandlePaymentFailed(ctx context.Context, ref stripe.SessionRef) error {
	logger := s.loggerFromContext(ctx)

	order, err := s.orderForPayment(ctx, ref)
	if err != nil {
		return err
	}
	if order.Status != models.StatusPendingPayment || order.PaymentStatus != models.PaymentStatusPending {
		logger.Info("ignoring payment failure due to order state", "order_id", order.ID, "status", order.Status, "payment_status", order.PaymentStatus)
		return nil
	}
	// A failure for a superseded session must not mark the retry as failed.
	if order.PaymentReference != "" && ref.ObjectID != "" && order.PaymentReference != ref.ObjectID && !strings.HasPrefix(ref.ObjectID, "pi_") {
		logger.Info("ignoring payment failure for superseded session", "order_id", order.ID, "session_id", ref.ObjectID)
		return nil
	}

	order.PaymentStatus = models.PaymentStatusFailed
	order.UpdatedAt = s.now().UTC()
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateOrder(ctx, order, models.StatusPendingPayment)
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidStatusTransition) {
			logger.Info("ignoring payment failure due to state transition", "order_id", order.ID, "error", err)
			return nil
		}
		return fmt.Errorf("failed to mark payment failed for order %s: %w", order.ID, err)
	}
	observability.MeterFromContext(ctx).Count("payment.failed", 1)
	return nil
}

func (s *OrderService) orderForPayment(ctx context.Context, ref stripe.SessionRef) (*models.Order, error) {
	if ref.OrderID != "" {
		order, err := s.store.GetOrder(ctx, ref.OrderID)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to get order: %w", err)
		}
	}
	order, err := s.store.GetOrderByPaymentReference(ctx, ref.ObjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order for payment %s: %w", ref.ObjectID, err)
	}
	return order, nil
}
