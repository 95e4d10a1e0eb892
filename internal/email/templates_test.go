package email

import (
	"context"
	"strings"
	"testing"
)

type recordingProvider struct {
	sent []*Email
}

func (p *recordingProvider) SendEmail(_ context.Context, email *Email) error {
	p.sent = append(p.sent, email)
	return nil
}

func TestRenderer_RenderOrderConfirmation(t *testing.T) {
	t.Parallel()

	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}

	message, err := renderer.Render(context.Background(), TemplateOrderConfirmation, &OrderInfo{
		OrderID:       "ORD-1",
		CustomerName:  "Asha <script>",
		CustomerEmail: "asha@example.com",
		Items:         []OrderItem{{Name: "Tee", Quantity: 2, TotalPrice: "₹1,200"}},
		Total:         "₹1,274",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if message.To != "asha@example.com" || message.Subject != "Order ORD-1 placed" {
		t.Fatalf("unexpected envelope %+v", message)
	}
	if !strings.Contains(message.Text, "Tee x2 ₹1,200") {
		t.Fatalf("expected item line in text body, got %q", message.Text)
	}
	if !strings.Contains(message.HTML, "₹1,274") {
		t.Fatalf("expected total in html body")
	}
}

func TestRenderer_UnknownTemplate(t *testing.T) {
	t.Parallel()

	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	if _, err := renderer.Render(context.Background(), "nope", &OrderInfo{}); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestSendUsesProvider(t *testing.T) {
	t.Parallel()

	provider := &recordingProvider{}
	if err := Send(context.Background(), provider, TemplateOrderCancelled, &OrderInfo{OrderID: "ORD-2", CustomerEmail: "a@b.c", RefundAmount: "₹500"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(provider.sent) != 1 || !strings.Contains(provider.sent[0].Text, "₹500 has been credited") {
		t.Fatalf("unexpected sent emails %+v", provider.sent)
	}
}

func TestNewProviderWithoutKeyIsNoop(t *testing.T) {
	t.Parallel()

	provider, err := NewProvider(Config{})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if _, ok := provider.(NoopProvider); !ok {
		t.Fatalf("expected NoopProvider, got %T", provider)
	}
	if _, err := NewProvider(Config{APIKey: "re_123"}); err == nil {
		t.Fatal("expected error when sender address is missing")
	}
}
