package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	StoreProvider string `env:"STORE_PROVIDER" envDefault:"postgres" validate:"oneof=memory postgres"`
	DatabaseURL   string `env:"DATABASE_URL" validate:"required_if=StoreProvider postgres"`

	CatalogProvider     string `env:"CATALOG_PROVIDER" envDefault:"store" validate:"oneof=store partner"`
	CatalogSeedFile     string `env:"CATALOG_SEED_FILE"`
	PartnerCatalogURL   string `env:"PARTNER_CATALOG_URL" validate:"omitempty,url"`
	PartnerClientID     string `env:"PARTNER_CLIENT_ID"`
	PartnerClientSecret string `env:"PARTNER_CLIENT_SECRET"`
	PartnerTokenURL     string `env:"PARTNER_TOKEN_URL" validate:"omitempty,url"`
	StockPolicy         string `env:"STOCK_POLICY" envDefault:"reserve" validate:"oneof=reserve none"`

	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=32"`
	JWTIssuer string `env:"JWT_ISSUER"`

	StripeSecretKey     string        `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET"`
	PaymentWindow       time.Duration `env:"PAYMENT_WINDOW" envDefault:"30m" validate:"min=30m,max=24h"`
	BaseURL             string        `env:"BASE_URL" envDefault:"http://localhost:8080" validate:"required,url"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" validate:"required_if=CacheProvider redis"`
	RedisKeyPrefix        string `env:"REDIS_KEY_PREFIX" envDefault:"storefront:"`

	NATSURL string `env:"NATS_URL"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	EmailFrom    string `env:"EMAIL_FROM"`

	SentryDSN         string `env:"SENTRY_DSN"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"development"`

	CORSAllowedOrigins    []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CheckoutRatePerMinute int      `env:"CHECKOUT_RATE_PER_MINUTE" envDefault:"10" validate:"min=1"`

	FreeShippingThreshold int64 `env:"FREE_SHIPPING_THRESHOLD" envDefault:"999" validate:"min=0"`
	ShippingFee           int64 `env:"SHIPPING_FEE" envDefault:"49" validate:"min=0"`
	TaxRateBPS            int64 `env:"TAX_RATE_BPS" envDefault:"1800" validate:"min=0,max=10000"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

// Load reads an optional .env file (ENV_FILE overrides the path), then the
// environment. Variables already set win over the file.
func Load() (*Config, error) {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasStripeKey := strings.TrimSpace(c.StripeSecretKey) != ""
	hasStripeWebhookSecret := strings.TrimSpace(c.StripeWebhookSecret) != ""
	if hasStripeKey != hasStripeWebhookSecret {
		return fmt.Errorf("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET must be set together")
	}

	if c.CatalogProvider == "partner" {
		for name, value := range map[string]string{
			"PARTNER_CATALOG_URL":   c.PartnerCatalogURL,
			"PARTNER_CLIENT_ID":     c.PartnerClientID,
			"PARTNER_CLIENT_SECRET": c.PartnerClientSecret,
			"PARTNER_TOKEN_URL":     c.PartnerTokenURL,
		} {
			if strings.TrimSpace(value) == "" {
				return fmt.Errorf("%s is required when CATALOG_PROVIDER=partner", name)
			}
		}
		if c.StockPolicy != "none" {
			return fmt.Errorf("STOCK_POLICY must be none when CATALOG_PROVIDER=partner")
		}
	}

	if strings.TrimSpace(c.ResendAPIKey) != "" && strings.TrimSpace(c.EmailFrom) == "" {
		return fmt.Errorf("EMAIL_FROM is required when RESEND_API_KEY is set")
	}

	parsed, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("BASE_URL must be a valid absolute URL")
	}
	if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("BASE_URL must use https outside local development")
	}

	return nil
}

// PaymentsEnabled reports whether prepaid checkout can open sessions.
func (c *Config) PaymentsEnabled() bool {
	return strings.TrimSpace(c.StripeSecretKey) != ""
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
