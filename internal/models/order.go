package models

import (
	"strings"
	"time"
)

type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusProcessing     OrderStatus = "processing"
	StatusShipped        OrderStatus = "shipped"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
	StatusReturned       OrderStatus = "returned"
)

type PaymentMethod string

const (
	PaymentPrepaid PaymentMethod = "prepaid"
	PaymentCOD     PaymentMethod = "cod"
	PaymentWallet  PaymentMethod = "wallet"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentPrepaid, PaymentCOD, PaymentWallet:
		return true
	default:
		return false
	}
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// TimelineOrderPlaced is the label of the first timeline entry of every order.
const TimelineOrderPlaced = "order_placed"

type Address struct {
	Name       string `json:"name" validate:"required"`
	Phone      string `json:"phone" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country,omitempty"`
}

// Complete reports whether every required address field is present.
func (a Address) Complete() bool {
	for _, field := range []string{a.Name, a.Phone, a.Line1, a.City, a.State, a.PostalCode} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

// OrderItem is the price snapshot captured when the order is placed.
type OrderItem struct {
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	ProductImage string `json:"productImage,omitempty"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unitPrice"`
	UnitMRP      int64  `json:"unitMrp"`
}

type Summary struct {
	Subtotal        int64 `json:"subtotal"`
	MRPTotal        int64 `json:"mrpTotal"`
	ProductDiscount int64 `json:"productDiscount"`
	Discount        int64 `json:"discount"`
	Tax             int64 `json:"tax"`
	Shipping        int64 `json:"shipping"`
	Total           int64 `json:"total"`
}

type TimelineEntry struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

type Order struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	ContactEmail     string          `json:"-"`
	Items            []OrderItem     `json:"items"`
	ShippingAddress  Address         `json:"shippingAddress"`
	BillingAddress   Address         `json:"billingAddress"`
	PaymentMethod    PaymentMethod   `json:"paymentMethod"`
	PaymentStatus    PaymentStatus   `json:"paymentStatus"`
	Status           OrderStatus     `json:"status"`
	CouponCode       string          `json:"couponCode,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	Summary          Summary         `json:"summary"`
	Carrier          string          `json:"carrier,omitempty"`
	TrackingNumber   string          `json:"trackingNumber,omitempty"`
	TrackingURL      string          `json:"trackingUrl,omitempty"`
	PaymentReference string          `json:"-"`
	StockReserved    bool            `json:"-"`
	Timeline         []TimelineEntry `json:"timeline"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cloned := *o
	cloned.Items = append([]OrderItem(nil), o.Items...)
	cloned.Timeline = append([]TimelineEntry(nil), o.Timeline...)
	return &cloned
}
