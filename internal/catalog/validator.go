package catalog

import (
	"fmt"
	"strings"

	"github.com/gitshopapp/storefront/internal/models"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(seed *SeedFile) error {
	if seed == nil {
		return fmt.Errorf("seed file is empty")
	}

	ids := make(map[string]bool)
	for i, product := range seed.Products {
		if err := v.validateProduct(&product); err != nil {
			return fmt.Errorf("product %d validation failed: %w", i, err)
		}

		if ids[product.ID] {
			return fmt.Errorf("duplicate product id: %s", product.ID)
		}
		ids[product.ID] = true
	}

	codes := make(map[string]bool)
	for i, coupon := range seed.Coupons {
		if err := v.validateCoupon(&coupon); err != nil {
			return fmt.Errorf("coupon %d validation failed: %w", i, err)
		}

		code := models.NormalizeCouponCode(coupon.Code)
		if codes[code] {
			return fmt.Errorf("duplicate coupon code: %s", code)
		}
		codes[code] = true
	}

	return nil
}

func (v *Validator) validateProduct(product *ProductSeed) error {
	if strings.TrimSpace(product.ID) == "" {
		return fmt.Errorf("product id is required")
	}

	if strings.TrimSpace(product.Name) == "" {
		return fmt.Errorf("product name is required")
	}

	if product.Price <= 0 {
		return fmt.Errorf("product price must be positive")
	}

	if product.MRP != 0 && product.MRP < product.Price {
		return fmt.Errorf("product mrp must not be below price")
	}

	if product.Stock < 0 {
		return fmt.Errorf("product stock must be zero or positive")
	}

	return nil
}

func (v *Validator) validateCoupon(coupon *CouponSeed) error {
	if models.NormalizeCouponCode(coupon.Code) == "" {
		return fmt.Errorf("coupon code is required")
	}

	switch models.CouponType(strings.ToLower(coupon.Type)) {
	case models.CouponPercentage:
		if coupon.Value <= 0 || coupon.Value > 100 {
			return fmt.Errorf("percentage coupon value must be between 1 and 100")
		}
	case models.CouponFixed:
		if coupon.Value <= 0 {
			return fmt.Errorf("fixed coupon value must be positive")
		}
	default:
		return fmt.Errorf("only percentage or fixed coupon types are supported")
	}

	if coupon.MinOrderValue < 0 || coupon.MaxDiscount < 0 || coupon.UsageLimit < 0 {
		return fmt.Errorf("coupon limits must be zero or positive")
	}

	if !coupon.ValidFrom.IsZero() && !coupon.ValidTo.IsZero() && coupon.ValidTo.Before(coupon.ValidFrom) {
		return fmt.Errorf("coupon valid_to must not be before valid_from")
	}

	return nil
}
