// Package email sends transactional order emails.
package email

import (
	"context"
	"fmt"
	"strings"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
	// Tags are attached to the message at the provider for delivery lookups.
	Tags map[string]string
}

type Config struct {
	Provider string
	APIKey   string
	From     string
}

// NewProvider returns the configured provider. An empty API key yields a
// provider that drops every message.
func NewProvider(config Config) (Provider, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return NoopProvider{}, nil
	}

	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "", "resend":
		if strings.TrimSpace(config.From) == "" {
			return nil, fmt.Errorf("EMAIL_FROM is required when RESEND_API_KEY is set")
		}
		return NewResendProvider(config.APIKey, config.From), nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be 'resend'")
	}
}

type NoopProvider struct{}

func (NoopProvider) SendEmail(context.Context, *Email) error {
	return nil
}
