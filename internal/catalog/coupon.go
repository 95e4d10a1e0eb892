package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/store"
)

type couponSource interface {
	GetCoupon(ctx context.Context, code string) (*models.Coupon, error)
}

type CouponResult struct {
	Code     string
	Applies  bool
	Discount int64
}

type CouponEvaluator struct {
	coupons couponSource
	logger  *slog.Logger
}

func NewCouponEvaluator(coupons couponSource, logger *slog.Logger) *CouponEvaluator {
	return &CouponEvaluator{coupons: coupons, logger: logger}
}

// Evaluate never fails the checkout: an unknown, inactive, expired or
// ineligible code yields a zero discount. Lookup errors are logged and
// treated the same way.
func (e *CouponEvaluator) Evaluate(ctx context.Context, code string, subtotal int64, now time.Time) CouponResult {
	normalized := models.NormalizeCouponCode(code)
	result := CouponResult{Code: normalized}
	if normalized == "" || e.coupons == nil {
		return result
	}

	coupon, err := e.coupons.GetCoupon(ctx, normalized)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logging.FromContext(ctx, e.logger).Warn("coupon lookup failed", "coupon", normalized, "error", err)
		}
		return result
	}

	result.Discount, result.Applies = CouponDiscount(coupon, subtotal, now)
	return result
}

// CouponDiscount computes the discount a coupon grants on subtotal at now.
// The result is clamped to maxDiscount (when set) and to subtotal.
func CouponDiscount(coupon *models.Coupon, subtotal int64, now time.Time) (int64, bool) {
	if coupon == nil || !coupon.IsActive || subtotal <= 0 {
		return 0, false
	}
	if !coupon.ValidFrom.IsZero() && now.Before(coupon.ValidFrom) {
		return 0, false
	}
	if !coupon.ValidTo.IsZero() && now.After(coupon.ValidTo) {
		return 0, false
	}
	if subtotal < coupon.MinOrderValue {
		return 0, false
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return 0, false
	}

	var discount int64
	switch models.CouponType(strings.ToLower(string(coupon.Type))) {
	case models.CouponPercentage:
		if coupon.Value <= 0 {
			return 0, false
		}
		discount = (subtotal*coupon.Value + 50) / 100
	case models.CouponFixed:
		discount = coupon.Value
	default:
		return 0, false
	}

	if coupon.MaxDiscount > 0 {
		discount = min(discount, coupon.MaxDiscount)
	}
	discount = min(discount, subtotal)
	if discount <= 0 {
		return 0, false
	}
	return discount, true
}
