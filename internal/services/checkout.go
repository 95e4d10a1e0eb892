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
	"github.com/oklog/ulid/v2"

	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/events"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/store"
	"github.com/gitshopapp/storefront/internal/stripe"
)

type StockPolicy string

const (
	// StockReserve decrements stock inside the checkout transaction and
	// restores it when the order is cancelled.
	StockReserve StockPolicy = "reserve"
	// StockNone treats stock as informational.
	StockNone StockPolicy = "none"
)

const (
	defaultTxTimeout     = 10 * time.Second
	defaultPaymentWindow = 30 * time.Minute
)

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, params stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type couponEvaluator interface {
	Evaluate(ctx context.Context, code string, subtotal int64, now time.Time) catalog.CouponResult
}

type orderPricer interface {
	Price(items []models.OrderItem, couponDiscount int64) models.Summary
}

type CheckoutDependencies struct {
	Store         store.Store
	Catalog       catalog.Lookup
	Coupons       couponEvaluator
	Pricer        orderPricer
	Payments      PaymentGateway
	Events        events.Publisher
	Emails        OrderEmailSender
	StockPolicy   StockPolicy
	TxTimeout     time.Duration
	PaymentWindow time.Duration
	Now           func() time.Time
	NewOrderID    func() string
	Logger        *slog.Logger
}

type CheckoutService struct {
	store         store.Store
	catalog       catalog.Lookup
	coupons       couponEvaluator
	pricer        orderPricer
	payments      PaymentGateway
	events        events.Publisher
	emails        OrderEmailSender
	stockPolicy   StockPolicy
	txTimeout     time.Duration
	paymentWindow time.Duration
	now           func() time.Time
	newOrderID    func() string
	logger        *slog.Logger
}

func NewCheckoutService(deps CheckoutDependencies) (*CheckoutService, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog lookup is required")
	}
	if deps.Coupons == nil {
		return nil, fmt.Errorf("coupon evaluator is required")
	}
	if deps.Pricer == nil {
		return nil, fmt.Errorf("pricer is required")
	}

	svc := &CheckoutService{
		store:         deps.Store,
		catalog:       deps.Catalog,
		coupons:       deps.Coupons,
		pricer:        deps.Pricer,
		payments:      deps.Payments,
		events:        deps.Events,
		emails:        deps.Emails,
		stockPolicy:   deps.StockPolicy,
		txTimeout:     deps.TxTimeout,
		paymentWindow: deps.PaymentWindow,
		now:           deps.Now,
		newOrderID:    deps.NewOrderID,
		logger:        deps.Logger,
	}
	if svc.events == nil {
		svc.events = events.NoopPublisher{}
	}
	if svc.emails == nil {
		svc.emails = noopOrderEmailSender{}
	}
	if svc.stockPolicy == "" {
		svc.stockPolicy = StockReserve
	}
	if svc.txTimeout <= 0 {
		svc.txTimeout = defaultTxTimeout
	}
	if svc.paymentWindow <= 0 {
		svc.paymentWindow = defaultPaymentWindow
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.newOrderID == nil {
		svc.newOrderID = NewOrderID
	}
	return svc, nil
}

// NewOrderID returns a lexically sortable, human-legible order id.
func NewOrderID() string {
	return "ORD-" + ulid.Make().String()
}

func (s *CheckoutService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type CheckoutItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type CheckoutRequest struct {
	UserID          string
	CustomerEmail   string
	Items           []CheckoutItem
	ShippingAddress models.Address
	BillingAddress  *models.Address
	PaymentMethod   models.PaymentMethod
	CouponCode      string
	Notes           string
}

type CheckoutResult struct {
	OrderID       string               `json:"orderId"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	Items         []models.OrderItem   `json:"items"`
	Summary       models.Summary       `json:"summary"`
	PaymentURL    string               `json:"paymentUrl,omitempty"`
	ExpiresAt     *time.Time           `json:"expiresAt,omitempty"`
}

type PreviewRequest struct {
	UserID     string
	Items      []CheckoutItem
	CouponCode string
}

type PreviewResult struct {
	Items         []models.OrderItem `json:"items"`
	Summary       models.Summary     `json:"summary"`
	CouponCode    string             `json:"couponCode,omitempty"`
	CouponApplied bool               `json:"couponApplied"`
}

// quote is a priced, stock-checked snapshot of a checkout.
type quote struct {
	items    []models.OrderItem
	fromCart bool
	coupon   catalog.CouponResult
	summary  models.Summary
}

// CreateOrder settles a checkout. Stock reservation, coupon redemption, the
// order insert, the cart clear and (for wallet payment) the ledger debit and
// confirmation commit together or not at all. Prepaid orders get a hosted
// payment session after the commit.
func (s *CheckoutService) CreateOrder(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.create_order",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("CreateOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("payment_method", string(req.PaymentMethod)))
	meter.Count("checkout.received", 1)
	fail := func(err *Error) (*CheckoutResult, error) {
		meter.Count("checkout.failed", 1, sentry.WithAttributes(
			attribute.String("reason", strings.ToLower(string(err.Code))),
		))
		if err.Code == CodeInternal {
			span.Status = sentry.SpanStatusInternalError
			logger.Error("checkout failed", "error", err.Err, "user_id", req.UserID)
		}
		return nil, err
	}

	if strings.TrimSpace(req.UserID) == "" {
		return fail(newError(CodeUnauthorized, "Authentication required", nil))
	}
	if !req.ShippingAddress.Complete() {
		return fail(newError(CodeValidation, "A complete shipping address is required", nil))
	}
	if req.BillingAddress != nil && !req.BillingAddress.Complete() {
		return fail(newError(CodeValidation, "Billing address is incomplete", nil))
	}
	if !req.PaymentMethod.Valid() {
		return fail(newError(CodeValidation, "Payment method must be prepaid, cod or wallet", nil))
	}
	if req.PaymentMethod == models.PaymentPrepaid && s.payments == nil {
		return fail(newError(CodeValidation, "Online payments are not available, choose cod or wallet", nil))
	}

	now := s.now().UTC()
	q, qerr := s.quote(ctx, req.UserID, req.Items, req.CouponCode, now)
	if qerr != nil {
		return fail(qerr)
	}

	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = *req.BillingAddress
	}
	// The code is kept for audit even when it granted nothing; the summary
	// discount says whether it applied.
	order := &models.Order{
		ID:              s.newOrderID(),
		UserID:          req.UserID,
		ContactEmail:    strings.TrimSpace(req.CustomerEmail),
		Items:           q.items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   models.PaymentStatusPending,
		Status:          models.StatusPendingPayment,
		CouponCode:      q.coupon.Code,
		Notes:           strings.TrimSpace(req.Notes),
		Summary:         q.summary,
		Timeline: []models.TimelineEntry{{
			Status:      models.TimelineOrderPlaced,
			Timestamp:   now,
			Description: "Order placed",
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()
	if err := s.store.WithTx(txCtx, func(ctx context.Context, tx store.Tx) error {
		return s.settle(ctx, tx, order, q, now)
	}); err != nil {
		return fail(s.translateSettleError(err))
	}

	logger.Info("order created",
		"order_id", order.ID,
		"user_id", order.UserID,
		"payment_method", order.PaymentMethod,
		"total", order.Summary.Total,
	)
	meter.Count("order.created", 1)
	if order.PaymentMethod == models.PaymentWallet {
		meter.Count("wallet.debit", 1)
	}

	result := newCheckoutResult(order)

	if order.PaymentMethod == models.PaymentPrepaid {
		// The order is committed; a cancelled request must not strand it
		// without its payment reference.
		session, perr := s.openPaymentSession(context.WithoutCancel(ctx), order)
		if perr != nil {
			s.publish(context.WithoutCancel(ctx), events.SubjectOrderCreated, order.ID, events.NewOrderCreated(order))
			return fail(perr.withMeta("orderId", order.ID))
		}
		result.PaymentURL = session.URL
		expiresAt := session.ExpiresAt
		result.ExpiresAt = &expiresAt
	}

	s.announceCreated(context.WithoutCancel(ctx), order, result.PaymentURL)
	span.Status = sentry.SpanStatusOK
	return result, nil
}

func (s *CheckoutService) settle(ctx context.Context, tx store.Tx, order *models.Order, q *quote, now time.Time) error {
	logger := s.loggerFromContext(ctx)

	if s.stockPolicy == StockReserve {
		for _, item := range order.Items {
			if err := tx.ReserveStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		order.StockReserved = true
	}

	if q.coupon.Applies {
		err := tx.RedeemCoupon(ctx, q.coupon.Code)
		switch {
		case errors.Is(err, store.ErrCouponExhausted), errors.Is(err, store.ErrNotFound):
			logger.Info("coupon no longer redeemable, pricing without it", "coupon", q.coupon.Code, "error", err)
			order.Summary = s.pricer.Price(order.Items, 0)
		case err != nil:
			return err
		}
	}

	if err := tx.CreateOrder(ctx, order); err != nil {
		return err
	}

	if q.fromCart {
		if err := tx.ClearCart(ctx, order.UserID); err != nil {
			return err
		}
	}

	if order.PaymentMethod != models.PaymentWallet {
		return nil
	}

	if order.Summary.Total > 0 {
		if _, err := tx.DebitWallet(ctx, store.WalletEntry{
			UserID:      order.UserID,
			Amount:      order.Summary.Total,
			ReferenceID: order.ID,
			Description: fmt.Sprintf("Payment for order %s", order.ID),
		}); err != nil {
			return err
		}
	}

	order.PaymentStatus = models.PaymentStatusPaid
	entry, err := order.Transition(models.StatusConfirmed, "Payment received from wallet", now)
	if err != nil {
		return err
	}
	return tx.UpdateOrder(ctx, order, models.StatusPendingPayment, entry)
}

func (s *CheckoutService) translateSettleError(err error) *Error {
	var coded *Error
	switch {
	case errors.As(err, &coded):
		return coded
	case errors.Is(err, store.ErrInsufficientBalance):
		return newError(CodeInsufficientBalance, "Wallet balance is too low for this order", err)
	case errors.Is(err, store.ErrInsufficientStock):
		return newError(CodeInsufficientStock, "One or more items are no longer available in the requested quantity", err)
	case errors.Is(err, store.ErrNotFound):
		return newError(CodeProductNotFound, "One or more products could not be found", err)
	case errors.Is(err, context.DeadlineExceeded):
		return internalError(fmt.Errorf("checkout transaction timed out: %w", err))
	default:
		return internalError(err)
	}
}

// Preview prices a checkout without reserving or persisting anything.
func (s *CheckoutService) Preview(ctx context.Context, req PreviewRequest) (*PreviewResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.preview",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("Preview"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	if strings.TrimSpace(req.UserID) == "" {
		return nil, newError(CodeUnauthorized, "Authentication required", nil)
	}

	q, err := s.quote(ctx, req.UserID, req.Items, req.CouponCode, s.now().UTC())
	if err != nil {
		if err.Code == CodeInternal {
			s.loggerFromContext(ctx).Error("checkout preview failed", "error", err.Err, "user_id", req.UserID)
		}
		return nil, err
	}
	return &PreviewResult{
		Items:         q.items,
		Summary:       q.summary,
		CouponCode:    q.coupon.Code,
		CouponApplied: q.coupon.Applies,
	}, nil
}

func (s *CheckoutService) quote(ctx context.Context, userID string, requested []CheckoutItem, couponCode string, now time.Time) (*quote, *Error) {
	lines, fromCart, err := s.resolveItems(ctx, userID, requested)
	if err != nil {
		return nil, err
	}

	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, lookupErr := s.catalog.Lookup(ctx, line.ProductID)
		if lookupErr != nil {
			if errors.Is(lookupErr, catalog.ErrProductNotFound) {
				return nil, newError(CodeProductNotFound, fmt.Sprintf("Product %s was not found", line.ProductID), lookupErr).
					withMeta("productId", line.ProductID)
			}
			return nil, internalError(lookupErr)
		}
		if !product.InStock || product.Stock < line.Quantity {
			return nil, newError(CodeInsufficientStock, fmt.Sprintf("Only %d of %s available", max(product.Stock, 0), product.Name), nil).
				withMeta("productId", line.ProductID)
		}

		mrp := product.MRP
		if mrp < product.Price {
			mrp = product.Price
		}
		items = append(items, models.OrderItem{
			ProductID:    line.ProductID,
			ProductName:  product.Name,
			ProductImage: product.Image,
			Quantity:     line.Quantity,
			UnitPrice:    product.Price,
			UnitMRP:      mrp,
		})
	}

	subtotal := s.pricer.Price(items, 0).Subtotal
	coupon := s.coupons.Evaluate(ctx, couponCode, subtotal, now)

	return &quote{
		items:    items,
		fromCart: fromCart,
		coupon:   coupon,
		summary:  s.pricer.Price(items, coupon.Discount),
	}, nil
}

// resolveItems falls back to the user's cart when no items are given and
// merges repeated product ids so stock is checked against the full quantity.
func (s *CheckoutService) resolveItems(ctx context.Context, userID string, requested []CheckoutItem) ([]CheckoutItem, bool, *Error) {
	fromCart := len(requested) == 0
	if fromCart {
		cart, err := s.store.GetCart(ctx, userID)
		if err != nil {
			return nil, false, internalError(fmt.Errorf("failed to load cart: %w", err))
		}
		for _, item := range cart {
			requested = append(requested, CheckoutItem{ProductID: item.ProductID, Quantity: item.Quantity})
		}
	}
	if len(requested) == 0 {
		return nil, false, newError(CodeEmptyCart, "Your cart is empty", nil)
	}

	merged := make([]CheckoutItem, 0, len(requested))
	index := make(map[string]int, len(requested))
	for _, item := range requested {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" || item.Quantity < 1 {
			return nil, false, newError(CodeValidation, "Each item needs a product id and a quantity of at least 1", nil)
		}
		if i, ok := index[productID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[productID] = len(merged)
		merged = append(merged, CheckoutItem{ProductID: productID, Quantity: item.Quantity})
	}
	return merged, fromCart, nil
}

// RetryPayment opens a fresh payment session for a prepaid order that is
// still awaiting payment.
func (s *CheckoutService) RetryPayment(ctx context.Context, userID, orderID string) (*CheckoutResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.retry_payment",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("RetryPayment"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	if strings.TrimSpace(userID) == "" {
		return nil, newError(CodeUnauthorized, "Authentication required", nil)
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil || order.UserID != userID {
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return nil, newError(CodeOrderNotFound, "Order not found", err)
		}
		return nil, internalError(err)
	}
	if order.PaymentMethod != models.PaymentPrepaid ||
		order.Status != models.StatusPendingPayment ||
		order.PaymentStatus == models.PaymentStatusPaid {
		return nil, newError(CodeInvalidTransition, "Order is not awaiting online payment", nil)
	}

	session, perr := s.openPaymentSession(ctx, order)
	if perr != nil {
		return nil, perr.withMeta("orderId", order.ID)
	}

	result := newCheckoutResult(order)
	result.PaymentStatus = models.PaymentStatusPending
	result.PaymentURL = session.URL
	expiresAt := session.ExpiresAt
	result.ExpiresAt = &expiresAt
	return result, nil
}

// openPaymentSession creates the hosted session and records its id on the
// order. Failing to record the id is logged only: webhooks carry the order
// id in their metadata as well.
func (s *CheckoutService) openPaymentSession(ctx context.Context, order *models.Order) (*stripe.CheckoutSession, *Error) {
	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	if s.payments == nil {
		return nil, newError(CodePaymentGateway, "Online payments are not available", fmt.Errorf("payment gateway not configured"))
	}

	session, err := s.payments.CreateCheckoutSession(ctx, stripe.CheckoutSessionParams{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Description:   fmt.Sprintf("Order %s", order.ID),
		AmountPaise:   order.Summary.Total * 100,
		CustomerEmail: order.ContactEmail,
		ExpiresAt:     s.now().Add(s.paymentWindow),
	})
	if err != nil {
		logger.Error("failed to create payment session", "error", err, "order_id", order.ID)
		meter.Count("payment.session.failed", 1)
		return nil, newError(CodePaymentGateway, "Payment could not be started, please retry", err)
	}
	meter.Count("payment.session.created", 1)

	previous := order.Status
	updated := order.Clone()
	updated.PaymentReference = session.ID
	updated.PaymentStatus = models.PaymentStatusPending
	updated.UpdatedAt = s.now().UTC()
	if err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateOrder(ctx, updated, previous)
	}); err != nil {
		logger.Warn("failed to record payment reference", "error", err, "order_id", order.ID, "session_id", session.ID)
	} else {
		order.PaymentReference = session.ID
		order.PaymentStatus = models.PaymentStatusPending
	}
	return session, nil
}

func (s *CheckoutService) announceCreated(ctx context.Context, order *models.Order, paymentURL string) {
	s.publish(ctx, events.SubjectOrderCreated, order.ID, events.NewOrderCreated(order))
	if err := s.emails.SendOrderConfirmation(ctx, order, paymentURL); err != nil {
		s.loggerFromContext(ctx).Warn("failed to send order confirmation email", "error", err, "order_id", order.ID)
	}
}

func (s *CheckoutService) publish(ctx context.Context, subject, orderID string, payload any) {
	if err := s.events.Publish(ctx, subject, payload); err != nil {
		s.loggerFromContext(ctx).Warn("failed to publish order event", "error", err, "subject", subject, "order_id", orderID)
	}
}

func newCheckoutResult(order *models.Order) *CheckoutResult {
	return &CheckoutResult{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Items:         order.Items,
		Summary:       order.Summary,
	}
}
