package email

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	resend "github.com/resend/resend-go/v3"
)

var (
	errNilEmail       = errors.New("email is required")
	errNoRecipient    = errors.New("email recipient is required")
	errEmptyEmailBody = errors.New("email body is empty")
)

// ResendProvider delivers order mail through the Resend API.
type ResendProvider struct {
	from   string
	client *resend.Client
}

func NewResendProvider(apiKey, from string) *ResendProvider {
	return &ResendProvider{
		from:   from,
		client: resend.NewClient(apiKey),
	}
}

func (r *ResendProvider) SendEmail(ctx context.Context, email *Email) error {
	params, err := r.request(email)
	if err != nil {
		return err
	}
	if r.client == nil {
		return fmt.Errorf("resend client not configured")
	}

	if _, err := r.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("failed to send email to %s via resend: %w", params.To[0], err)
	}
	return nil
}

func (r *ResendProvider) request(email *Email) (*resend.SendEmailRequest, error) {
	if email == nil {
		return nil, errNilEmail
	}
	to := strings.TrimSpace(email.To)
	if to == "" {
		return nil, errNoRecipient
	}
	if email.HTML == "" && email.Text == "" {
		return nil, errEmptyEmailBody
	}

	params := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{to},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}
	names := make([]string, 0, len(email.Tags))
	for name := range email.Tags {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if value := email.Tags[name]; value != "" {
			params.Tags = append(params.Tags, resend.Tag{Name: name, Value: value})
		}
	}
	return params, nil
}
