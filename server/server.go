package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

// Handler returns the full middleware chain around the router. The sentry
// handler gives every request its own hub and transaction.
func (s *Server) Handler() http.Handler {
	tracing := sentryhttp.New(sentryhttp.Options{Repanic: true, WaitForDelivery: false})
	return s.handlers.CORS(tracing.Handle(s.buildRouter()))
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)
	r.NotFoundHandler = h.SecurityHeaders(http.HandlerFunc(h.NotFound))
	r.MethodNotAllowedHandler = h.SecurityHeaders(http.HandlerFunc(h.MethodNotAllowed))

	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.RequireAuth)
	api.HandleFunc("/checkout", h.CreateOrder).Methods("POST").Name("checkout.create")
	api.HandleFunc("/checkout/preview", h.PreviewCheckout).Methods("POST").Name("checkout.preview")
	api.HandleFunc("/orders", h.ListOrders).Methods("GET").Name("orders.list")
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET").Name("orders.get")
	api.HandleFunc("/orders/{id}/cancel", h.CancelOrder).Methods("POST").Name("orders.cancel")
	api.HandleFunc("/orders/{id}/payment", h.RetryPayment).Methods("POST").Name("orders.payment")
	api.HandleFunc("/cart", h.GetCart).Methods("GET").Name("cart.get")
	api.HandleFunc("/cart", h.ClearCart).Methods("DELETE").Name("cart.clear")
	api.HandleFunc("/cart/items", h.SetCartItem).Methods("PUT").Name("cart.items.set")
	api.HandleFunc("/cart/items/{productId}", h.RemoveCartItem).Methods("DELETE").Name("cart.items.remove")
	api.HandleFunc("/wallet", h.GetWallet).Methods("GET").Name("wallet.get")
	api.HandleFunc("/wallet/transactions", h.ListWalletTransactions).Methods("GET").Name("wallet.transactions")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(h.RequireAdmin)
	admin.HandleFunc("/orders/{id}/status", h.AdminTransitionOrder).Methods("POST").Name("admin.orders.status")
	admin.HandleFunc("/wallets/{userId}/credit", h.AdminCreditWallet).Methods("POST").Name("admin.wallets.credit")

	return r
}
