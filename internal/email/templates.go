package email

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// OrderInfo is the view model shared by every order template.
type OrderInfo struct {
	OrderID         string
	CustomerName    string
	CustomerEmail   string
	OrderDate       string
	PaymentMethod   string
	PaymentURL      string
	Items           []OrderItem
	Subtotal        string
	Discount        string
	Shipping        string
	Tax             string
	Total           string
	ShippingAddress string
	TrackingNumber  string
	TrackingURL     string
	TrackingCarrier string
	RefundAmount    string
}

type OrderItem struct {
	Name       string
	Quantity   int
	UnitPrice  string
	TotalPrice string
}

const (
	TemplateOrderConfirmation = "order_confirmation"
	TemplateOrderShipped      = "order_shipped"
	TemplateOrderCancelled    = "order_cancelled"
)

type Renderer struct {
	text *texttemplate.Template
	html *htmltemplate.Template
}

var subjects = map[string]string{
	TemplateOrderConfirmation: "Order %s placed",
	TemplateOrderShipped:      "Order %s has shipped",
	TemplateOrderCancelled:    "Order %s was cancelled",
}

func NewRenderer() (*Renderer, error) {
	text := texttemplate.New("email")
	html := htmltemplate.New("email")
	for name, body := range map[string][2]string{
		TemplateOrderConfirmation: {orderConfirmationText, orderConfirmationHTML},
		TemplateOrderShipped:      {orderShippedText, orderShippedHTML},
		TemplateOrderCancelled:    {orderCancelledText, orderCancelledHTML},
	} {
		if _, err := text.New(name).Parse(body[0]); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", name, err)
		}
		if _, err := html.New(name).Parse(layoutOpen + body[1] + layoutClose); err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", name, err)
		}
	}
	return &Renderer{text: text, html: html}, nil
}

func (r *Renderer) Render(_ context.Context, templateName string, data *OrderInfo) (*Email, error) {
	if data == nil {
		return nil, fmt.Errorf("order info is required")
	}
	subject, ok := subjects[templateName]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", templateName)
	}

	var textBuf, htmlBuf bytes.Buffer
	if err := r.text.ExecuteTemplate(&textBuf, templateName, data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}
	if err := r.html.ExecuteTemplate(&htmlBuf, templateName, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return &Email{
		To:      data.CustomerEmail,
		Subject: fmt.Sprintf(subject, data.OrderID),
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
		Tags: map[string]string{
			"template": templateName,
			"order_id": data.OrderID,
		},
	}, nil
}

// Send renders templateName for info and hands it to p.
func Send(ctx context.Context, p Provider, templateName string, info *OrderInfo) error {
	if p == nil {
		return nil
	}

	renderer, err := NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}

	message, err := renderer.Render(ctx, templateName, info)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	return p.SendEmail(ctx, message)
}

const orderConfirmationText = `Thank you for your order{{if .CustomerName}}, {{.CustomerName}}{{end}}!

Order: {{.OrderID}}
Placed: {{.OrderDate}}
Payment: {{.PaymentMethod}}

{{range .Items}}- {{.Name}} x{{.Quantity}} {{.TotalPrice}}
{{end}}
Subtotal: {{.Subtotal}}
Discount: {{.Discount}}
Shipping: {{.Shipping}}
Tax: {{.Tax}}
Total: {{.Total}}
{{if .PaymentURL}}
Complete your payment: {{.PaymentURL}}
{{end}}
Delivering to:
{{.ShippingAddress}}
`

const orderShippedText = `Your order {{.OrderID}} is on its way.
{{if .TrackingNumber}}
Carrier: {{.TrackingCarrier}}
Tracking number: {{.TrackingNumber}}
{{if .TrackingURL}}Track it: {{.TrackingURL}}{{end}}
{{end}}
Delivering to:
{{.ShippingAddress}}
`

const orderCancelledText = `Your order {{.OrderID}} has been cancelled.
{{if .RefundAmount}}
{{.RefundAmount}} has been credited to your wallet.
{{end}}`

const layoutOpen = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.OrderID}}</title></head>
<body style="font-family: sans-serif; color: #1f2937; max-width: 600px; margin: 0 auto;">
`

const layoutClose = `
</body>
</html>
`

const orderConfirmationHTML = `<h1>Order placed</h1>
<p>Order <strong>{{.OrderID}}</strong> placed on {{.OrderDate}} ({{.PaymentMethod}}).</p>
<table style="width: 100%; border-collapse: collapse;">
  {{range .Items}}<tr><td>{{.Name}}</td><td>x{{.Quantity}}</td><td style="text-align: right;">{{.TotalPrice}}</td></tr>
  {{end}}
</table>
<p>Subtotal {{.Subtotal}}<br>Discount {{.Discount}}<br>Shipping {{.Shipping}}<br>Tax {{.Tax}}<br><strong>Total {{.Total}}</strong></p>
{{if .PaymentURL}}<p><a href="{{.PaymentURL}}">Complete your payment</a></p>{{end}}
<p style="white-space: pre-line;">{{.ShippingAddress}}</p>`

const orderShippedHTML = `<h1>Your order has shipped</h1>
<p>Order <strong>{{.OrderID}}</strong> is on its way.</p>
{{if .TrackingNumber}}<p>{{.TrackingCarrier}}: {{.TrackingNumber}}</p>
{{if .TrackingURL}}<p><a href="{{.TrackingURL}}">Track your package</a></p>{{end}}{{end}}
<p style="white-space: pre-line;">{{.ShippingAddress}}</p>`

const orderCancelledHTML = `<h1>Order cancelled</h1>
<p>Order <strong>{{.OrderID}}</strong> has been cancelled.</p>
{{if .RefundAmount}}<p>{{.RefundAmount}} has been credited to your wallet.</p>{{end}}`
