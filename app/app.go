package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/gitshopapp/storefront/internal/auth"
	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/catalog"
	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/email"
	"github.com/gitshopapp/storefront/internal/events"
	"github.com/gitshopapp/storefront/internal/handlers"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/ratelimit"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/store"
	"github.com/gitshopapp/storefront/internal/stripe"
)

const sentryFlushTimeout = 2 * time.Second

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Store         store.Store
	CacheProvider cache.Provider
	Events        events.Publisher
	Handlers      *handlers.Handlers

	sentryEnabled bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled, err := initSentry(cfg)
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stdout, logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Sentry: sentryEnabled,
	})

	a := &App{Config: cfg, Logger: logger, sentryEnabled: sentryEnabled}
	fail := func(err error) (*App, error) {
		a.Close()
		return nil, err
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	a.Store, err = openStore(startupCtx, cfg, logger)
	if err != nil {
		return fail(err)
	}

	if cfg.CatalogSeedFile != "" {
		seed, err := catalog.NewParser().ParseFile(cfg.CatalogSeedFile)
		if err != nil {
			return fail(fmt.Errorf("failed to read catalog seed: %w", err))
		}
		if err := catalog.Seed(startupCtx, a.Store, seed); err != nil {
			return fail(fmt.Errorf("failed to seed catalog: %w", err))
		}
		logger.Info("catalog seeded", "products", len(seed.Products), "coupons", len(seed.Coupons))
	}

	lookup, err := newCatalogLookup(cfg, a.Store)
	if err != nil {
		return fail(err)
	}

	a.CacheProvider, err = cache.NewProvider(startupCtx, cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
		RedisKeyPrefix:        cfg.RedisKeyPrefix,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize cache provider: %w", err))
	}

	a.Events = events.NoopPublisher{}
	if cfg.NATSURL != "" {
		publisher, err := events.ConnectNATS(startupCtx, cfg.NATSURL, logging.Component(logger, "nats"))
		if err != nil {
			return fail(err)
		}
		a.Events = publisher
	}

	emailProvider, err := email.NewProvider(email.Config{
		APIKey: cfg.ResendAPIKey,
		From:   cfg.EmailFrom,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize email provider: %w", err))
	}
	orderEmailer := services.NewProviderOrderEmailSender(emailProvider)

	var payments services.PaymentGateway
	if cfg.PaymentsEnabled() {
		payments = stripe.NewGateway(cfg.StripeSecretKey, cfg.BaseURL)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, prepaid checkout is disabled")
	}

	pricer := catalog.NewPricer(catalog.Policy{
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		ShippingFee:           cfg.ShippingFee,
		TaxRateBPS:            cfg.TaxRateBPS,
	})

	checkoutService, err := services.NewCheckoutService(services.CheckoutDependencies{
		Store:         a.Store,
		Catalog:       lookup,
		Coupons:       catalog.NewCouponEvaluator(a.Store, logging.Component(logger, "coupons")),
		Pricer:        pricer,
		Payments:      payments,
		Events:        a.Events,
		Emails:        orderEmailer,
		StockPolicy:   services.StockPolicy(cfg.StockPolicy),
		PaymentWindow: cfg.PaymentWindow,
		Logger:        logging.Component(logger, "checkout_service"),
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize checkout service: %w", err))
	}
	orderService := services.NewOrderService(a.Store, a.Events, orderEmailer, logging.Component(logger, "order_service"))
	walletService := services.NewWalletService(a.Store, logging.Component(logger, "wallet_service"))
	cartService := services.NewCartService(a.Store, lookup, pricer, logging.Component(logger, "cart_service"))

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize token verifier: %w", err))
	}
	limiter, err := ratelimit.New(cfg.CheckoutRatePerMinute, 0)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize rate limiter: %w", err))
	}

	var stripeRouter *handlers.StripeEventRouter
	if cfg.PaymentsEnabled() {
		stripeRouter = handlers.NewStripeEventRouter(orderService, logging.Component(logger, "stripe_router"))
	}

	a.Handlers, err = handlers.New(handlers.Dependencies{
		Config:        cfg,
		Checkout:      checkoutService,
		Orders:        orderService,
		Carts:         cartService,
		Wallets:       walletService,
		Verifier:      verifier,
		CacheProvider: a.CacheProvider,
		RateLimiter:   limiter,
		Health:        a.Store,
		StripeRouter:  stripeRouter,
		Logger:        logger,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize handlers: %w", err))
	}

	return a, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Events != nil {
		a.Events.Close()
	}
	if a.CacheProvider != nil {
		if err := a.CacheProvider.Close(); err != nil && a.Logger != nil {
			a.Logger.Warn("failed to close cache provider", "error", err)
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
	if a.sentryEnabled {
		sentry.Flush(sentryFlushTimeout)
	}
}

func initSentry(cfg *config.Config) (bool, error) {
	if cfg.SentryDSN == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		EnableLogs:       true,
		SendDefaultPII:   false,
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return true, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreProvider {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return db.NewStore(pool), nil
	default:
		return nil, fmt.Errorf("unsupported store provider: %s", cfg.StoreProvider)
	}
}

func newCatalogLookup(cfg *config.Config, s store.Store) (catalog.Lookup, error) {
	if cfg.CatalogProvider != "partner" {
		return catalog.NewStoreLookup(s), nil
	}
	client, err := catalog.NewPartnerClient(catalog.PartnerConfig{
		BaseURL:      cfg.PartnerCatalogURL,
		ClientID:     cfg.PartnerClientID,
		ClientSecret: cfg.PartnerClientSecret,
		TokenURL:     cfg.PartnerTokenURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize partner catalog: %w", err)
	}
	return client, nil
}
