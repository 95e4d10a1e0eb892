package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gitshopapp/storefront/internal/auth"
	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/ratelimit"
	"github.com/gitshopapp/storefront/internal/services"
)

const (
	maxRequestBodyBytes = 64 << 10
	maxWebhookBodyBytes = 1 << 20 // 1 MB
	healthCheckTimeout  = 2 * time.Second
)

type checkoutService interface {
	CreateOrder(ctx context.Context, req services.CheckoutRequest) (*services.CheckoutResult, error)
	Preview(ctx context.Context, req services.PreviewRequest) (*services.PreviewResult, error)
	RetryPayment(ctx context.Context, userID, orderID string) (*services.CheckoutResult, error)
}

type orderService interface {
	List(ctx context.Context, userID string, status models.OrderStatus, page, limit int) (*services.OrderList, error)
	Get(ctx context.Context, userID, orderID string) (*models.Order, error)
	Cancel(ctx context.Context, userID, orderID, reason string) (*models.Order, error)
	AdminTransition(ctx context.Context, orderID string, req services.TransitionRequest) (*models.Order, error)
}

type cartService interface {
	Get(ctx context.Context, userID string) (*services.CartView, error)
	SetItem(ctx context.Context, userID string, req services.SetCartItemRequest) (*services.CartView, error)
	RemoveItem(ctx context.Context, userID, productID string) (*services.CartView, error)
	Clear(ctx context.Context, userID string) error
}

type walletService interface {
	Balance(ctx context.Context, userID string) (*services.WalletBalance, error)
	Transactions(ctx context.Context, userID string, page, limit int) (*services.TransactionList, error)
	Credit(ctx context.Context, userID string, req services.CreditRequest) (*models.WalletTransaction, error)
}

type tokenVerifier interface {
	Verify(token string) (*auth.Principal, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Handlers serves the storefront JSON API.
type Handlers struct {
	config        *config.Config
	checkout      checkoutService
	orders        orderService
	carts         cartService
	wallets       walletService
	verifier      tokenVerifier
	cacheProvider cache.Provider
	limiter       *ratelimit.Limiter
	health        pinger
	stripeRouter  *StripeEventRouter
	logger        *slog.Logger
}

type Dependencies struct {
	Config        *config.Config
	Checkout      checkoutService
	Orders        orderService
	Carts         cartService
	Wallets       walletService
	Verifier      tokenVerifier
	CacheProvider cache.Provider
	// RateLimiter throttles checkout per user. Nil disables throttling.
	RateLimiter  *ratelimit.Limiter
	Health       pinger
	StripeRouter *StripeEventRouter
	Logger       *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.Checkout == nil {
		return nil, fmt.Errorf("handlers dependencies: checkout is required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("handlers dependencies: orders is required")
	}
	if deps.Carts == nil {
		return nil, fmt.Errorf("handlers dependencies: carts is required")
	}
	if deps.Wallets == nil {
		return nil, fmt.Errorf("handlers dependencies: wallets is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("handlers dependencies: verifier is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.Health == nil {
		return nil, fmt.Errorf("handlers dependencies: health is required")
	}

	return &Handlers{
		config:        deps.Config,
		checkout:      deps.Checkout,
		orders:        deps.Orders,
		carts:         deps.Carts,
		wallets:       deps.Wallets,
		verifier:      deps.Verifier,
		cacheProvider: deps.CacheProvider,
		limiter:       deps.RateLimiter,
		health:        deps.Health,
		stripeRouter:  deps.StripeRouter,
		logger:        logging.Component(deps.Logger, "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		h.loggerFromContext(ctx).Error("store health check failed", "error", err)
		h.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}
