// Package catalog resolves products and coupons and prices checkouts.
package catalog

import "github.com/gitshopapp/storefront/internal/models"

type Policy struct {
	FreeShippingThreshold int64
	ShippingFee           int64
	TaxRateBPS            int64
}

func DefaultPolicy() Policy {
	return Policy{
		FreeShippingThreshold: 999,
		ShippingFee:           49,
		TaxRateBPS:            1800,
	}
}

type Pricer struct {
	policy Policy
}

func NewPricer(policy Policy) *Pricer {
	return &Pricer{policy: policy}
}

func (p *Pricer) Policy() Policy {
	return p.policy
}

// Price builds the order summary. Steps run in a fixed order: subtotal, MRP
// total and product discount, shipping on the subtotal, then tax on the
// subtotal less the coupon discount.
func (p *Pricer) Price(items []models.OrderItem, couponDiscount int64) models.Summary {
	var subtotal, mrpTotal int64
	for _, item := range items {
		qty := int64(item.Quantity)
		subtotal += item.UnitPrice * qty
		mrpTotal += item.UnitMRP * qty
	}

	productDiscount := mrpTotal - subtotal
	if productDiscount < 0 {
		productDiscount = 0
	}

	shipping := p.policy.ShippingFee
	if subtotal >= p.policy.FreeShippingThreshold {
		shipping = 0
	}

	discount := min(max(couponDiscount, 0), subtotal)
	taxable := subtotal - discount
	tax := roundBasisPoints(taxable, p.policy.TaxRateBPS)

	return models.Summary{
		Subtotal:        subtotal,
		MRPTotal:        mrpTotal,
		ProductDiscount: productDiscount,
		Discount:        discount,
		Tax:             tax,
		Shipping:        shipping,
		Total:           taxable + tax + shipping,
	}
}

// roundBasisPoints returns amount*bps/10000 rounded half up.
func roundBasisPoints(amount, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount*bps + 5000) / 10000
}
