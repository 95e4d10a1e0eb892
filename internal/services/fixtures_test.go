package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/store"
	"github.com/gitshopapp/storefront/internal/stripe"
)

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fakeGateway struct {
	mu       sync.Mutex
	err      error
	requests []stripe.CheckoutSessionParams
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, params stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.requests = append(g.requests, params)
	id := fmt.Sprintf("cs_test_%d", len(g.requests))
	return &stripe.CheckoutSession{
		ID:        id,
		URL:       "https://checkout.stripe.test/" + id,
		ExpiresAt: params.ExpiresAt,
	}, nil
}

func (g *fakeGateway) calls() []stripe.CheckoutSessionParams {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]stripe.CheckoutSessionParams(nil), g.requests...)
}

type publishedEvent struct {
	subject string
	payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(_ context.Context, subject string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{subject: subject, payload: payload})
	return nil
}

func (p *fakePublisher) Close() {}

func (p *fakePublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.subject)
	}
	return out
}

type sentEmail struct {
	kind       string
	orderID    string
	paymentURL string
	refund     int64
}

type fakeEmails struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (e *fakeEmails) record(mail sentEmail) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, mail)
	return nil
}

func (e *fakeEmails) SendOrderConfirmation(_ context.Context, order *models.Order, paymentURL string) error {
	return e.record(sentEmail{kind: "confirmation", orderID: order.ID, paymentURL: paymentURL})
}

func (e *fakeEmails) SendOrderShipped(_ context.Context, order *models.Order) error {
	return e.record(sentEmail{kind: "shipped", orderID: order.ID})
}

func (e *fakeEmails) SendOrderCancelled(_ context.Context, order *models.Order, refund int64) error {
	return e.record(sentEmail{kind: "cancelled", orderID: order.ID, refund: refund})
}

func (e *fakeEmails) all() []sentEmail {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sentEmail(nil), e.sent...)
}

type fixture struct {
	store    *store.Memory
	clock    *steppingClock
	gateway  *fakeGateway
	events   *fakePublisher
	emails   *fakeEmails
	checkout *CheckoutService
	orders   *OrderService
	wallets  *WalletService
	carts    *CartService
}

var testSeed = &catalog.SeedFile{
	Products: []catalog.ProductSeed{
		{ID: "tee", Name: "Logo Tee", Price: 600, MRP: 800, Stock: 10},
		{ID: "mug", Name: "Coffee Mug", Price: 500, Stock: 5},
		{ID: "poster", Name: "Signed Poster", Price: 999, Stock: 1},
	},
	Coupons: []catalog.CouponSeed{
		{Code: "save10", Type: "percentage", Value: 10},
		{Code: "ONCE100", Type: "fixed", Value: 100, UsageLimit: 1},
	},
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := newSteppingClock()
	mem := store.NewMemory().WithClock(clock.Now)
	if err := catalog.Seed(context.Background(), mem, testSeed); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}

	f := &fixture{
		store:   mem,
		clock:   clock,
		gateway: &fakeGateway{},
		events:  &fakePublisher{},
		emails:  &fakeEmails{},
	}
	lookup := catalog.NewStoreLookup(mem)
	pricer := catalog.NewPricer(catalog.DefaultPolicy())

	checkout, err := NewCheckoutService(CheckoutDependencies{
		Store:    mem,
		Catalog:  lookup,
		Coupons:  catalog.NewCouponEvaluator(mem, nil),
		Pricer:   pricer,
		Payments: f.gateway,
		Events:   f.events,
		Emails:   f.emails,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to build checkout service: %v", err)
	}
	f.checkout = checkout
	f.orders = NewOrderService(mem, f.events, f.emails, nil).WithClock(clock.Now)
	f.wallets = NewWalletService(mem, nil)
	f.carts = NewCartService(mem, lookup, pricer, nil)
	return f
}

func testAddress() models.Address {
	return models.Address{
		Name:       "Asha Rao",
		Phone:      "9876543210",
		Line1:      "12 MG Road",
		City:       "Bengaluru",
		State:      "KA",
		PostalCode: "560001",
		Country:    "IN",
	}
}

func (f *fixture) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	if _, err := f.wallets.Credit(context.Background(), userID, CreditRequest{Amount: amount}); err != nil {
		t.Fatalf("failed to fund wallet: %v", err)
	}
}

func (f *fixture) putCart(t *testing.T, userID string, items ...models.CartItem) {
	t.Helper()
	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, item := range items {
			item.UserID = userID
			if err := tx.SetCartItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to fill cart: %v", err)
	}
}

func (f *fixture) placeOrder(t *testing.T, userID string, method models.PaymentMethod, items ...CheckoutItem) *CheckoutResult {
	t.Helper()
	if len(items) == 0 {
		items = []CheckoutItem{{ProductID: "tee", Quantity: 2}}
	}
	result, err := f.checkout.CreateOrder(context.Background(), CheckoutRequest{
		UserID:          userID,
		CustomerEmail:   userID + "@example.com",
		Items:           items,
		ShippingAddress: testAddress(),
		PaymentMethod:   method,
	})
	if err != nil {
		t.Fatalf("failed to place order: %v", err)
	}
	return result
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	product, err := f.store.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("failed to get product: %v", err)
	}
	return product.Stock
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	wallet, err := f.wallets.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to get balance: %v", err)
	}
	return wallet.Balance
}

func (f *fixture) orderCount(t *testing.T, userID string) int {
	t.Helper()
	_, total, err := f.store.ListOrders(context.Background(), store.OrderFilter{UserID: userID})
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	return total
}

func assertCode(t *testing.T, err error, want ErrorCode) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	var coded *Error
	if !errors.As(err, &coded) {
		t.Fatalf("expected coded error, got %T: %v", err, err)
	}
	if coded.Code != want {
		t.Fatalf("expected code %s, got %s (%v)", want, coded.Code, err)
	}
	return coded
}
