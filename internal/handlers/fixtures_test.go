package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/auth"
	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/ratelimit"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/stripe"
)

const (
	testJWTSecret     = "test-secret-that-is-at-least-32-bytes-long"
	testWebhookSecret = "whsec_handlers_test"
)

type fakeCheckout struct {
	createCalls  int
	lastCreate   services.CheckoutRequest
	createResult *services.CheckoutResult
	createErr    error
	lastPreview  services.PreviewRequest
	previewErr   error
	retryErr     error
}

func (f *fakeCheckout) CreateOrder(_ context.Context, req services.CheckoutRequest) (*services.CheckoutResult, error) {
	f.createCalls++
	f.lastCreate = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createResult != nil {
		return f.createResult, nil
	}
	return &services.CheckoutResult{
		OrderID:       "ORD-1",
		Status:        models.StatusPendingPayment,
		PaymentStatus: models.PaymentStatusPending,
		Summary:       models.Summary{Subtotal: 500, Tax: 90, Shipping: 49, Total: 639},
	}, nil
}

func (f *fakeCheckout) Preview(_ context.Context, req services.PreviewRequest) (*services.PreviewResult, error) {
	f.lastPreview = req
	if f.previewErr != nil {
		return nil, f.previewErr
	}
	return &services.PreviewResult{Summary: models.Summary{Subtotal: 1200, Discount: 120, Tax: 194, Total: 1274}}, nil
}

func (f *fakeCheckout) RetryPayment(_ context.Context, _, orderID string) (*services.CheckoutResult, error) {
	if f.retryErr != nil {
		return nil, f.retryErr
	}
	return &services.CheckoutResult{OrderID: orderID, PaymentURL: "https://checkout.stripe.test/cs_2"}, nil
}

type fakeOrders struct {
	lastUser     string
	lastStatus   models.OrderStatus
	lastPage     int
	lastLimit    int
	lastReason   string
	lastRequest  services.TransitionRequest
	err          error
	transitioned int
}

func (f *fakeOrders) List(_ context.Context, userID string, status models.OrderStatus, page, limit int) (*services.OrderList, error) {
	f.lastUser, f.lastStatus, f.lastPage, f.lastLimit = userID, status, page, limit
	if f.err != nil {
		return nil, f.err
	}
	return &services.OrderList{Orders: []services.OrderListItem{}, Page: page, Limit: 10}, nil
}

func (f *fakeOrders) Get(_ context.Context, userID, orderID string) (*models.Order, error) {
	f.lastUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: orderID, UserID: userID, Status: models.StatusConfirmed}, nil
}

func (f *fakeOrders) Cancel(_ context.Context, userID, orderID, reason string) (*models.Order, error) {
	f.lastUser, f.lastReason = userID, reason
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: orderID, UserID: userID, Status: models.StatusCancelled}, nil
}

func (f *fakeOrders) AdminTransition(_ context.Context, orderID string, req services.TransitionRequest) (*models.Order, error) {
	f.transitioned++
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: orderID, Status: req.Status}, nil
}

type fakeCarts struct {
	lastUser    string
	lastSet     services.SetCartItemRequest
	lastRemoved string
	cleared     bool
}

func (f *fakeCarts) Get(_ context.Context, userID string) (*services.CartView, error) {
	f.lastUser = userID
	return &services.CartView{Items: []services.CartLine{}}, nil
}

func (f *fakeCarts) SetItem(_ context.Context, userID string, req services.SetCartItemRequest) (*services.CartView, error) {
	f.lastUser, f.lastSet = userID, req
	return &services.CartView{Items: []services.CartLine{}}, nil
}

func (f *fakeCarts) RemoveItem(_ context.Context, userID, productID string) (*services.CartView, error) {
	f.lastUser, f.lastRemoved = userID, productID
	return &services.CartView{Items: []services.CartLine{}}, nil
}

func (f *fakeCarts) Clear(_ context.Context, userID string) error {
	f.lastUser, f.cleared = userID, true
	return nil
}

type fakeWallets struct {
	lastUser   string
	lastPage   int
	lastCredit services.CreditRequest
}

func (f *fakeWallets) Balance(_ context.Context, userID string) (*services.WalletBalance, error) {
	f.lastUser = userID
	return &services.WalletBalance{UserID: userID, Balance: 1000}, nil
}

func (f *fakeWallets) Transactions(_ context.Context, userID string, page, limit int) (*services.TransactionList, error) {
	f.lastUser, f.lastPage = userID, page
	return &services.TransactionList{Transactions: []models.WalletTransaction{}, Page: page, Limit: 20}, nil
}

func (f *fakeWallets) Credit(_ context.Context, userID string, req services.CreditRequest) (*models.WalletTransaction, error) {
	f.lastUser, f.lastCredit = userID, req
	return &models.WalletTransaction{UserID: userID, Type: models.WalletCredit, Amount: req.Amount, BalanceAfter: req.Amount}, nil
}

type fakePayments struct {
	confirmed []stripe.SessionRef
	failed    []stripe.SessionRef
	err       error
}

func (f *fakePayments) HandlePaymentConfirmed(_ context.Context, ref stripe.SessionRef) error {
	if f.err != nil {
		return f.err
	}
	f.confirmed = append(f.confirmed, ref)
	return nil
}

func (f *fakePayments) HandlePaymentFailed(_ context.Context, ref stripe.SessionRef) error {
	if f.err != nil {
		return f.err
	}
	f.failed = append(f.failed, ref)
	return nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type testEnv struct {
	handlers *Handlers
	router   *mux.Router
	verifier *auth.Verifier
	cache    *cache.MemoryProvider
	checkout *fakeCheckout
	orders   *fakeOrders
	carts    *fakeCarts
	wallets  *fakeWallets
	payments *fakePayments
}

type envOption func(*Dependencies)

func withLimiter(limiter *ratelimit.Limiter) envOption {
	return func(d *Dependencies) { d.RateLimiter = limiter }
}

func withHealth(p pinger) envOption {
	return func(d *Dependencies) { d.Health = p }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	verifier, err := auth.NewVerifier(testJWTSecret, "")
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}
	provider, err := cache.NewMemoryProvider(100)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		verifier: verifier,
		cache:    provider,
		checkout: &fakeCheckout{},
		orders:   &fakeOrders{},
		carts:    &fakeCarts{},
		wallets:  &fakeWallets{},
		payments: &fakePayments{},
	}
	deps := Dependencies{
		Config:        &config.Config{StripeWebhookSecret: testWebhookSecret},
		Checkout:      env.checkout,
		Orders:        env.orders,
		Carts:         env.carts,
		Wallets:       env.wallets,
		Verifier:      verifier,
		CacheProvider: provider,
		Health:        fakePinger{},
		StripeRouter:  NewStripeEventRouter(env.payments, logger),
		Logger:        logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	h, err := New(deps)
	if err != nil {
		t.Fatalf("failed to create handlers: %v", err)
	}
	env.handlers = h
	env.router = testRouter(h)
	return env
}

// testRouter mirrors the production route table.
func testRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)
	r.NotFoundHandler = http.HandlerFunc(h.NotFound)
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.RequireAuth)
	api.HandleFunc("/checkout", h.CreateOrder).Methods("POST")
	api.HandleFunc("/checkout/preview", h.PreviewCheckout).Methods("POST")
	api.HandleFunc("/orders", h.ListOrders).Methods("GET")
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", h.CancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/payment", h.RetryPayment).Methods("POST")
	api.HandleFunc("/cart", h.GetCart).Methods("GET")
	api.HandleFunc("/cart", h.ClearCart).Methods("DELETE")
	api.HandleFunc("/cart/items", h.SetCartItem).Methods("PUT")
	api.HandleFunc("/cart/items/{productId}", h.RemoveCartItem).Methods("DELETE")
	api.HandleFunc("/wallet", h.GetWallet).Methods("GET")
	api.HandleFunc("/wallet/transactions", h.ListWalletTransactions).Methods("GET")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(h.RequireAdmin)
	admin.HandleFunc("/orders/{id}/status", h.AdminTransitionOrder).Methods("POST")
	admin.HandleFunc("/wallets/{userId}/credit", h.AdminCreditWallet).Methods("POST")
	return r
}

func (e *testEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := e.verifier.Issue(auth.Principal{UserID: userID, Email: userID + "@example.com", Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, target, token, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected error json, got %q: %v", rec.Body.String(), err)
	}
	if body.Success {
		t.Fatalf("expected success=false, got %q", rec.Body.String())
	}
	return body
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code services.ErrorCode) errorBody {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	body := decodeErrorBody(t, rec)
	if body.Error.Code != code {
		t.Fatalf("expected code %s, got %s", code, body.Error.Code)
	}
	return body
}

const validCheckoutBody = `{
	"items": [{"productId": "tee", "quantity": 2}],
	"shippingAddress": {"name": "Asha", "phone": "9999999999", "line1": "1 MG Road", "city": "Pune", "state": "MH", "postalCode": "411001"},
	"paymentMethod": "cod"
}`
