package db

import (
	"context"
	"fmt"
	"time"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/store"
)

func (r reader) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	var product models.Product
	err := r.q.QueryRow(ctx, `
		SELECT id, name, image, price, mrp, stock
		FROM products
		WHERE id = $1`, productID).
		Scan(&product.ID, &product.Name, &product.Image, &product.Price, &product.MRP, &product.Stock)
	if err != nil {
		return nil, notFound(err, "product %s", productID)
	}
	product.InStock = product.Stock > 0
	return &product, nil
}

func (r reader) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	var (
		coupon        models.Coupon
		validFrom, to *time.Time
	)
	err := r.q.QueryRow(ctx, `
		SELECT code, type, value, min_order_value, max_discount, valid_from, valid_to,
			usage_limit, used_count, is_active
		FROM coupons
		WHERE code = $1`, models.NormalizeCouponCode(code)).
		Scan(&coupon.Code, &coupon.Type, &coupon.Value, &coupon.MinOrderValue, &coupon.MaxDiscount,
			&validFrom, &to, &coupon.UsageLimit, &coupon.UsedCount, &coupon.IsActive)
	if err != nil {
		return nil, notFound(err, "coupon %s", code)
	}
	if validFrom != nil {
		coupon.ValidFrom = *validFrom
	}
	if to != nil {
		coupon.ValidTo = *to
	}
	return &coupon, nil
}

func (r reader) GetCart(ctx context.Context, userID string) ([]models.CartItem, error) {
	rows, err := r.q.Query(ctx, `
		SELECT user_id, product_id, quantity, added_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY added_at, product_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		var item models.CartItem
		if err := rows.Scan(&item.UserID, &item.ProductID, &item.Quantity, &item.AddedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ReserveStock decrements stock only when enough remains.
func (t *tx) ReserveStock(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("product %s: %w", productID, store.ErrInsufficientStock)
	}
	cmdTag, err := t.q.Exec(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		found, err := t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
		}
		return fmt.Errorf("product %s: %w", productID, store.ErrInsufficientStock)
	}
	return nil
}

func (t *tx) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	cmdTag, err := t.q.Exec(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1`, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	return nil
}

// RedeemCoupon counts one use while the usage limit (0 = unlimited) allows.
func (t *tx) RedeemCoupon(ctx context.Context, code string) error {
	normalized := models.NormalizeCouponCode(code)
	cmdTag, err := t.q.Exec(ctx, `
		UPDATE coupons
		SET used_count = used_count + 1
		WHERE code = $1 AND is_active AND (usage_limit = 0 OR used_count < usage_limit)`, normalized)
	if err != nil {
		return fmt.Errorf("failed to redeem coupon: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		found, err := t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`, normalized)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("coupon %s: %w", normalized, store.ErrNotFound)
		}
		return fmt.Errorf("coupon %s: %w", normalized, store.ErrCouponExhausted)
	}
	return nil
}

func (t *tx) SetCartItem(ctx context.Context, item models.CartItem) error {
	if item.Quantity <= 0 {
		return t.RemoveCartItem(ctx, item.UserID, item.ProductID)
	}
	addedAt := item.AddedAt
	if addedAt.IsZero() {
		addedAt = t.now().UTC()
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		item.UserID, item.ProductID, item.Quantity, addedAt)
	if err != nil {
		return fmt.Errorf("failed to set cart item: %w", err)
	}
	return nil
}

func (t *tx) RemoveCartItem(ctx context.Context, userID, productID string) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID); err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	return nil
}

func (t *tx) ClearCart(ctx context.Context, userID string) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (t *tx) UpsertProduct(ctx context.Context, product models.Product) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO products (id, name, image, price, mrp, stock, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, image = EXCLUDED.image, price = EXCLUDED.price,
			mrp = EXCLUDED.mrp, stock = EXCLUDED.stock, updated_at = now()`,
		product.ID, product.Name, product.Image, product.Price, product.MRP, product.Stock)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", product.ID, err)
	}
	return nil
}

// UpsertCoupon keeps used_count so reseeding never resets redemptions.
func (t *tx) UpsertCoupon(ctx context.Context, coupon models.Coupon) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO coupons (code, type, value, min_order_value, max_discount, valid_from, valid_to, usage_limit, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (code) DO UPDATE
		SET type = EXCLUDED.type, value = EXCLUDED.value, min_order_value = EXCLUDED.min_order_value,
			max_discount = EXCLUDED.max_discount, valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to, usage_limit = EXCLUDED.usage_limit, is_active = EXCLUDED.is_active`,
		models.NormalizeCouponCode(coupon.Code), string(coupon.Type), coupon.Value, coupon.MinOrderValue,
		coupon.MaxDiscount, nullableTime(coupon.ValidFrom), nullableTime(coupon.ValidTo), coupon.UsageLimit, coupon.IsActive)
	if err != nil {
		return fmt.Errorf("failed to upsert coupon %s: %w", coupon.Code, err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
