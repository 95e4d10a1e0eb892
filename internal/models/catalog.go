package models

import (
	"strings"
	"time"
)

type Product struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Image   string `json:"image,omitempty"`
	Price   int64  `json:"price"`
	MRP     int64  `json:"mrp"`
	Stock   int    `json:"stock"`
	InStock bool   `json:"inStock"`
}

type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFixed      CouponType = "fixed"
)

type Coupon struct {
	Code          string     `json:"code"`
	Type          CouponType `json:"type"`
	Value         int64      `json:"value"`
	MinOrderValue int64      `json:"minOrderValue"`
	MaxDiscount   int64      `json:"maxDiscount"`
	ValidFrom     time.Time  `json:"validFrom"`
	ValidTo       time.Time  `json:"validTo"`
	UsageLimit    int        `json:"usageLimit"`
	UsedCount     int        `json:"usedCount"`
	IsActive      bool       `json:"isActive"`
}

// NormalizeCouponCode returns the canonical, case-folded form of a code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type CartItem struct {
	UserID    string    `json:"-"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
}
