package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/store"
)

// Seed validates seed and upserts its products and coupons in one
// transaction.
func Seed(ctx context.Context, s store.Store, seed *SeedFile) error {
	if err := NewValidator().Validate(seed); err != nil {
		return err
	}

	return s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, product := range seed.Products {
			if err := tx.UpsertProduct(ctx, product.toModel()); err != nil {
				return fmt.Errorf("failed to seed product %s: %w", product.ID, err)
			}
		}
		for _, coupon := range seed.Coupons {
			if err := tx.UpsertCoupon(ctx, coupon.toModel()); err != nil {
				return fmt.Errorf("failed to seed coupon %s: %w", coupon.Code, err)
			}
		}
		return nil
	})
}

func (p ProductSeed) toModel() models.Product {
	mrp := p.MRP
	if mrp == 0 {
		mrp = p.Price
	}
	return models.Product{
		ID:      strings.TrimSpace(p.ID),
		Name:    strings.TrimSpace(p.Name),
		Image:   p.Image,
		Price:   p.Price,
		MRP:     mrp,
		Stock:   p.Stock,
		InStock: p.Stock > 0,
	}
}

func (c CouponSeed) toModel() models.Coupon {
	active := true
	if c.Active != nil {
		active = *c.Active
	}
	return models.Coupon{
		Code:          models.NormalizeCouponCode(c.Code),
		Type:          models.CouponType(strings.ToLower(c.Type)),
		Value:         c.Value,
		MinOrderValue: c.MinOrderValue,
		MaxDiscount:   c.MaxDiscount,
		ValidFrom:     c.ValidFrom,
		ValidTo:       c.ValidTo,
		UsageLimit:    c.UsageLimit,
		IsActive:      active,
	}
}
