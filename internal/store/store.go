// Package store defines the transactional persistence boundary used by the
// checkout and order services.
package store

import (
	"context"
	"errors"

	"github.com/gitshopapp/storefront/internal/models"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrInsufficientBalance     = errors.New("insufficient wallet balance")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrCouponExhausted         = errors.New("coupon usage limit reached")
	ErrDuplicate               = errors.New("duplicate record")
)

type OrderFilter struct {
	UserID string
	Status models.OrderStatus
	Limit  int
	Offset int
}

type Page struct {
	Limit  int
	Offset int
}

// WalletEntry describes a single ledger movement.
type WalletEntry struct {
	UserID      string
	Amount      int64
	ReferenceID string
	Description string
}

type Reader interface {
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
	GetCoupon(ctx context.Context, code string) (*models.Coupon, error)
	GetCart(ctx context.Context, userID string) ([]models.CartItem, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	GetOrderByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*models.Order, int, error)
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
	ListWalletTransactions(ctx context.Context, userID string, page Page) ([]models.WalletTransaction, int, error)
}

// Tx is the write side of a unit of work. Every method that guards an
// invariant (stock, coupon usage, wallet balance, order status) performs a
// conditional update and fails with the matching sentinel error instead of
// reading and then writing.
type Tx interface {
	Reader

	CreateOrder(ctx context.Context, order *models.Order) error
	// UpdateOrder persists status, payment and shipment fields of order,
	// provided the stored order is still in status from, and appends entries
	// to its timeline.
	UpdateOrder(ctx context.Context, order *models.Order, from models.OrderStatus, entries ...models.TimelineEntry) error

	ReserveStock(ctx context.Context, productID string, quantity int) error
	ReleaseStock(ctx context.Context, productID string, quantity int) error
	RedeemCoupon(ctx context.Context, code string) error

	SetCartItem(ctx context.Context, item models.CartItem) error
	RemoveCartItem(ctx context.Context, userID, productID string) error
	ClearCart(ctx context.Context, userID string) error

	DebitWallet(ctx context.Context, entry WalletEntry) (*models.WalletTransaction, error)
	CreditWallet(ctx context.Context, entry WalletEntry) (*models.WalletTransaction, error)

	UpsertProduct(ctx context.Context, product models.Product) error
	UpsertCoupon(ctx context.Context, coupon models.Coupon) error
}

type Store interface {
	Reader
	// WithTx runs fn in a single transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}

// ClampPage applies the default and maximum page size.
func ClampPage(limit, offset, defaultLimit, maxLimit int) Page {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}
