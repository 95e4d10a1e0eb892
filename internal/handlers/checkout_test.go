package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gitshopapp/storefront/internal/auth"
	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/ratelimit"
	"github.com/gitshopapp/storefront/internal/services"
)

func TestCreateOrder(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/checkout", env.token(t, "u-1", auth.RoleCustomer), validCheckoutBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var result services.CheckoutResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.OrderID != "ORD-1" || result.Summary.Total != 639 {
		t.Fatalf("unexpected result: %+v", result)
	}

	req := env.checkout.lastCreate
	if req.UserID != "u-1" || req.CustomerEmail != "u-1@example.com" {
		t.Fatalf("expected caller identity on request, got user=%q email=%q", req.UserID, req.CustomerEmail)
	}
	if req.PaymentMethod != models.PaymentCOD || len(req.Items) != 1 || req.Items[0].Quantity != 2 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.BillingAddress != nil {
		t.Fatalf("expected billing address to be left for the service to default, got %+v", req.BillingAddress)
	}
}

func TestCreateOrderRejectsInvalidBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "empty body"},
		{name: "malformed json", body: `{"paymentMethod":`},
		{name: "unknown field", body: `{"paymentMethod":"cod","shippingAddress":{"name":"a","phone":"1","line1":"x","city":"c","state":"s","postalCode":"1"},"gift":true}`},
		{name: "missing address", body: `{"paymentMethod":"cod"}`},
		{name: "incomplete address", body: `{"paymentMethod":"cod","shippingAddress":{"name":"a"}}`},
		{name: "bad payment method", body: `{"paymentMethod":"cheque","shippingAddress":{"name":"a","phone":"1","line1":"x","city":"c","state":"s","postalCode":"1"}}`},
		{name: "zero quantity", body: `{"items":[{"productId":"tee","quantity":0}],"paymentMethod":"cod","shippingAddress":{"name":"a","phone":"1","line1":"x","city":"c","state":"s","postalCode":"1"}}`},
		{name: "trailing data", body: validCheckoutBody + `{}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/api/checkout", env.token(t, "u-1", auth.RoleCustomer), tt.body)
			assertErrorCode(t, rec, http.StatusBadRequest, services.CodeValidation)
			if env.checkout.createCalls != 0 {
				t.Fatalf("expected service not to be called, got %d calls", env.checkout.createCalls)
			}
		})
	}
}

func TestCreateOrderMapsServiceErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    services.ErrorCode
		wantMessage string
		wantDetail  string
	}{
		{
			name:        "empty cart",
			err:         &services.Error{Code: services.CodeEmptyCart, Message: "Cart is empty"},
			wantStatus:  http.StatusBadRequest,
			wantCode:    services.CodeEmptyCart,
			wantMessage: "Cart is empty",
		},
		{
			name:        "insufficient stock keeps product detail",
			err:         &services.Error{Code: services.CodeInsufficientStock, Message: "Not enough stock", Meta: map[string]string{"productId": "poster"}},
			wantStatus:  http.StatusBadRequest,
			wantCode:    services.CodeInsufficientStock,
			wantMessage: "Not enough stock",
			wantDetail:  "poster",
		},
		{
			name:        "insufficient balance",
			err:         &services.Error{Code: services.CodeInsufficientBalance, Message: "Wallet balance is too low"},
			wantStatus:  http.StatusBadRequest,
			wantCode:    services.CodeInsufficientBalance,
			wantMessage: "Wallet balance is too low",
		},
		{
			name:        "gateway failure",
			err:         &services.Error{Code: services.CodePaymentGateway, Message: "Payment could not be started, please retry"},
			wantStatus:  http.StatusBadGateway,
			wantCode:    services.CodePaymentGateway,
			wantMessage: "Payment could not be started, please retry",
		},
		{
			name:        "uncoded error is hidden",
			err:         errors.New("pq: connection reset by peer"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    services.CodeInternal,
			wantMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			env.checkout.createErr = tt.err

			rec := env.do(t, http.MethodPost, "/api/checkout", env.token(t, "u-1", auth.RoleCustomer), validCheckoutBody)
			body := assertErrorCode(t, rec, tt.wantStatus, tt.wantCode)
			if body.Error.Message != tt.wantMessage {
				t.Fatalf("expected message %q, got %q", tt.wantMessage, body.Error.Message)
			}
			if got := body.Error.Details["productId"]; got != tt.wantDetail {
				t.Fatalf("expected productId detail %q, got %q", tt.wantDetail, got)
			}
		})
	}
}

func TestCreateOrderReplaysIdempotencyKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := env.token(t, "u-1", auth.RoleCustomer)

	first := env.do(t, http.MethodPost, "/api/checkout", token, validCheckoutBody, "Idempotency-Key", "key-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, first.Code, first.Body.String())
	}
	second := env.do(t, http.MethodPost, "/api/checkout", token, validCheckoutBody, "Idempotency-Key", "key-1")
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replay status %d, got %d", http.StatusCreated, second.Code)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected replay header")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected identical bodies, got %q and %q", first.Body.String(), second.Body.String())
	}
	if env.checkout.createCalls != 1 {
		t.Fatalf("expected one checkout, got %d", env.checkout.createCalls)
	}

	// Keys are scoped per user.
	other := env.do(t, http.MethodPost, "/api/checkout", env.token(t, "u-2", auth.RoleCustomer), validCheckoutBody, "Idempotency-Key", "key-1")
	if other.Code != http.StatusCreated || other.Header().Get("Idempotent-Replayed") != "" {
		t.Fatalf("expected fresh checkout for another user, got %d", other.Code)
	}
	if env.checkout.createCalls != 2 {
		t.Fatalf("expected two checkouts, got %d", env.checkout.createCalls)
	}
}

func TestCreateOrderReleasesKeyOnFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	token := env.token(t, "u-1", auth.RoleCustomer)
	env.checkout.createErr = &services.Error{Code: services.CodeInsufficientBalance, Message: "Wallet balance is too low"}

	rec := env.do(t, http.MethodPost, "/api/checkout", token, validCheckoutBody, "Idempotency-Key", "key-1")
	assertErrorCode(t, rec, http.StatusBadRequest, services.CodeInsufficientBalance)

	env.checkout.createErr = nil
	rec = env.do(t, http.MethodPost, "/api/checkout", token, validCheckoutBody, "Idempotency-Key", "key-1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected retry to run, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.checkout.createCalls != 2 {
		t.Fatalf("expected two checkouts, got %d", env.checkout.createCalls)
	}
}

func TestCreateOrderRejectsKeyInProgress(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	key := cache.IdempotencyKey("checkout", "u-1", "key-1")
	if err := env.cache.Set(context.Background(), key, "pending", time.Minute); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/checkout", env.token(t, "u-1", auth.RoleCustomer), validCheckoutBody, "Idempotency-Key", "key-1")
	assertErrorCode(t, rec, http.StatusConflict, codeRequestInProgress)
	if env.checkout.createCalls != 0 {
		t.Fatalf("expected no checkout, got %d", env.checkout.createCalls)
	}
}

func TestCreateOrderRateLimited(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimit.New(1, 10)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	env := newTestEnv(t, withLimiter(limiter))
	token := env.token(t, "u-1", auth.RoleCustomer)

	rec := env.do(t, http.MethodPost, "/api/checkout", token, validCheckoutBody, "Idempotency-Key", "key-1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rec.Code)
	}

	// A replay is served even when the bucket is empty.
	rec = env.do(t, http.MethodPost, "/api/checkout", token, validCheckoutBody, "Idempotency-Key", "key-1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replay status %d, got %d", http.StatusCreated, rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/checkout", token, validCheckoutBody, "Idempotency-Key", "key-2")
	assertErrorCode(t, rec, http.StatusTooManyRequests, services.CodeRateLimited)
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if env.checkout.createCalls != 1 {
		t.Fatalf("expected one checkout, got %d", env.checkout.createCalls)
	}

	// The throttled key was released.
	if _, err := env.cache.Get(context.Background(), cache.IdempotencyKey("checkout", "u-1", "key-2")); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("expected key-2 to be released, got %v", err)
	}
}

func TestPreviewCheckout(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/checkout/preview", env.token(t, "u-1", auth.RoleCustomer), `{"couponCode":"welcome10"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if env.checkout.lastPreview.CouponCode != "welcome10" || env.checkout.lastPreview.UserID != "u-1" {
		t.Fatalf("unexpected preview request: %+v", env.checkout.lastPreview)
	}

	var result services.PreviewResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode preview: %v", err)
	}
	if result.Summary.Total != 1274 {
		t.Fatalf("expected total 1274, got %d", result.Summary.Total)
	}

	// The body is optional: an empty preview prices the cart.
	rec = env.do(t, http.MethodPost, "/api/checkout/preview", env.token(t, "u-1", auth.RoleCustomer), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}
