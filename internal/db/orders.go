package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/store"
)

const orderColumns = `
	id, user_id, contact_email, items, shipping_address, billing_address,
	payment_method, payment_status, status, coupon_code, notes, summary,
	carrier, tracking_number, tracking_url, COALESCE(payment_reference, ''),
	stock_reserved, created_at, updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		order                         models.Order
		items, shipping, billing, sum []byte
	)
	err := row.Scan(
		&order.ID, &order.UserID, &order.ContactEmail, &items, &shipping, &billing,
		&order.PaymentMethod, &order.PaymentStatus, &order.Status, &order.CouponCode, &order.Notes, &sum,
		&order.Carrier, &order.TrackingNumber, &order.TrackingURL, &order.PaymentReference,
		&order.StockReserved, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, field := range []struct {
		raw  []byte
		dest any
	}{
		{items, &order.Items},
		{shipping, &order.ShippingAddress},
		{billing, &order.BillingAddress},
		{sum, &order.Summary},
	} {
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return nil, fmt.Errorf("failed to decode order %s: %w", order.ID, err)
		}
	}
	return &order, nil
}

func (r reader) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		return nil, notFound(err, "order %s", orderID)
	}
	if err := r.loadTimeline(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r reader) GetOrderByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	if reference == "" {
		return nil, fmt.Errorf("payment reference: %w", store.ErrNotFound)
	}
	order, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_reference = $1`, reference))
	if err != nil {
		return nil, notFound(err, "payment reference %s", reference)
	}
	if err := r.loadTimeline(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns orders newest first without their timeline.
func (r reader) ListOrders(ctx context.Context, filter store.OrderFilter) ([]*models.Order, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	query := `SELECT ` + orderColumns + ` FROM orders` + clause + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

func (r reader) loadTimeline(ctx context.Context, order *models.Order) error {
	rows, err := r.q.Query(ctx, `
		SELECT status, description, created_at
		FROM order_timeline
		WHERE order_id = $1
		ORDER BY id`, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load timeline for %s: %w", order.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry models.TimelineEntry
		if err := rows.Scan(&entry.Status, &entry.Description, &entry.Timestamp); err != nil {
			return err
		}
		order.Timeline = append(order.Timeline, entry)
	}
	return rows.Err()
}

func (t *tx) CreateOrder(ctx context.Context, order *models.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("order id is required")
	}
	items, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}
	shipping, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}
	billing, err := json.Marshal(order.BillingAddress)
	if err != nil {
		return err
	}
	summary, err := json.Marshal(order.Summary)
	if err != nil {
		return err
	}

	_, err = t.q.Exec(ctx, `
		INSERT INTO orders (
			id, user_id, contact_email, items, shipping_address, billing_address,
			payment_method, payment_status, status, coupon_code, notes, summary,
			carrier, tracking_number, tracking_url, payment_reference,
			stock_reserved, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULLIF($16, ''), $17, $18, $19)`,
		order.ID, order.UserID, order.ContactEmail, items, shipping, billing,
		string(order.PaymentMethod), string(order.PaymentStatus), string(order.Status), order.CouponCode, order.Notes, summary,
		order.Carrier, order.TrackingNumber, order.TrackingURL, order.PaymentReference,
		order.StockReserved, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s: %w", order.ID, store.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return t.appendTimeline(ctx, order.ID, order.Timeline...)
}

func (t *tx) UpdateOrder(ctx context.Context, order *models.Order, from models.OrderStatus, entries ...models.TimelineEntry) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	cmdTag, err := t.q.Exec(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, payment_reference = NULLIF($4, ''),
			stock_reserved = $5, carrier = $6, tracking_number = $7, tracking_url = $8,
			updated_at = $9
		WHERE id = $1 AND status = $10`,
		order.ID, string(order.Status), string(order.PaymentStatus), order.PaymentReference,
		order.StockReserved, order.Carrier, order.TrackingNumber, order.TrackingURL,
		order.UpdatedAt, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		found, err := t.exists(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("order %s: %w", order.ID, store.ErrNotFound)
		}
		return fmt.Errorf("%w: expected %s", store.ErrInvalidStatusTransition, from)
	}
	return t.appendTimeline(ctx, order.ID, entries...)
}

func (t *tx) appendTimeline(ctx context.Context, orderID string, entries ...models.TimelineEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, entry := range entries {
		batch.Queue(`
			INSERT INTO order_timeline (order_id, status, description, created_at)
			VALUES ($1, $2, $3, $4)`, orderID, entry.Status, entry.Description, entry.Timestamp)
	}
	if err := t.q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to append timeline for %s: %w", orderID, err)
	}
	return nil
}
