package services

import (
	"strconv"
	"strings"
	"time"

	"github.com/gitshopapp/storefront/internal/email"
	"github.com/gitshopapp/storefront/internal/models"
)

// OrderInfoOverrides provides optional overrides when building order email data.
type OrderInfoOverrides struct {
	CustomerEmail string
	PaymentURL    string
	RefundAmount  int64
}

// BuildOrderInfo builds a consistent OrderInfo payload for email templates.
func BuildOrderInfo(order *models.Order, overrides OrderInfoOverrides) *email.OrderInfo {
	if order == nil {
		return &email.OrderInfo{}
	}

	customerEmail := strings.TrimSpace(overrides.CustomerEmail)
	if customerEmail == "" {
		customerEmail = strings.TrimSpace(order.ContactEmail)
	}

	orderDate := order.CreatedAt
	if orderDate.IsZero() {
		orderDate = time.Now()
	}

	items := make([]email.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, email.OrderItem{
			Name:       item.ProductName,
			Quantity:   item.Quantity,
			UnitPrice:  formatRupees(item.UnitPrice),
			TotalPrice: formatRupees(item.UnitPrice * int64(item.Quantity)),
		})
	}

	info := &email.OrderInfo{
		OrderID:         order.ID,
		CustomerName:    strings.TrimSpace(order.ShippingAddress.Name),
		CustomerEmail:   customerEmail,
		OrderDate:       orderDate.Format("2 January 2006"),
		PaymentMethod:   paymentMethodLabel(order.PaymentMethod),
		PaymentURL:      overrides.PaymentURL,
		Items:           items,
		Subtotal:        formatRupees(order.Summary.Subtotal),
		Discount:        formatRupees(order.Summary.Discount),
		Shipping:        formatRupees(order.Summary.Shipping),
		Tax:             formatRupees(order.Summary.Tax),
		Total:           formatRupees(order.Summary.Total),
		ShippingAddress: formatAddress(order.ShippingAddress),
		TrackingNumber:  order.TrackingNumber,
		TrackingURL:     order.TrackingURL,
		TrackingCarrier: order.Carrier,
	}
	if overrides.RefundAmount > 0 {
		info.RefundAmount = formatRupees(overrides.RefundAmount)
	}
	return info
}

// formatRupees renders an amount with Indian digit grouping, e.g. ₹1,23,456.
func formatRupees(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	if len(digits) <= 3 {
		return sign + "₹" + digits
	}

	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	groups := make([]string, 0, len(head)/2+1)
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	groups = append([]string{head}, groups...)
	return sign + "₹" + strings.Join(groups, ",") + "," + tail
}

func paymentMethodLabel(method models.PaymentMethod) string {
	switch method {
	case models.PaymentPrepaid:
		return "Card"
	case models.PaymentCOD:
		return "Cash on delivery"
	case models.PaymentWallet:
		return "Wallet"
	default:
		return string(method)
	}
}

func formatAddress(address models.Address) string {
	lines := []string{}
	for _, line := range []string{address.Name, address.Line1, address.Line2} {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	cityStatePostal := strings.TrimSpace(strings.TrimSpace(address.City) + ", " + strings.TrimSpace(address.State) + " " + strings.TrimSpace(address.PostalCode))
	cityStatePostal = strings.Trim(cityStatePostal, ", ")
	if cityStatePostal != "" {
		lines = append(lines, cityStatePostal)
	}
	if country := strings.TrimSpace(address.Country); country != "" {
		lines = append(lines, country)
	}
	if phone := strings.TrimSpace(address.Phone); phone != "" {
		lines = append(lines, phone)
	}
	return strings.Join(lines, "\n")
}
