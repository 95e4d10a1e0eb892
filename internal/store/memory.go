package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gitshopapp/storefront/internal/models"
)

// Memory is an in-process Store. Transactions are serialized and work on a
// copy of the state that replaces the live state only on commit. Stored
// values are never mutated in place, so a copy of the top-level maps is
// enough to roll back.
type Memory struct {
	mu    sync.RWMutex
	state *memoryState
	now   func() time.Time
}

type memoryState struct {
	products     map[string]models.Product
	coupons      map[string]models.Coupon
	carts        map[string][]models.CartItem
	orders       map[string]*models.Order
	references   map[string]string
	wallets      map[string]models.Wallet
	transactions map[string][]models.WalletTransaction
}

func NewMemory() *Memory {
	return &Memory{
		state: &memoryState{
			products:     map[string]models.Product{},
			coupons:      map[string]models.Coupon{},
			carts:        map[string][]models.CartItem{},
			orders:       map[string]*models.Order{},
			references:   map[string]string{},
			wallets:      map[string]models.Wallet{},
			transactions: map[string][]models.WalletTransaction{},
		},
		now: time.Now,
	}
}

// WithClock overrides the clock used for ledger and cart timestamps.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	if now != nil {
		m.now = now
	}
	return m
}

func (s *memoryState) clone() *memoryState {
	return &memoryState{
		products:     maps.Clone(s.products),
		coupons:      maps.Clone(s.coupons),
		carts:        maps.Clone(s.carts),
		orders:       maps.Clone(s.orders),
		references:   maps.Clone(s.references),
		wallets:      maps.Clone(s.wallets),
		transactions: maps.Clone(s.transactions),
	}
}

func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if fn == nil {
		return fmt.Errorf("transaction function is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	draft := m.state.clone()
	if err := fn(ctx, &memoryTx{memoryReader: memoryReader{state: draft}, state: draft, now: m.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = draft
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}

func (m *Memory) read() memoryReader {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memoryReader{state: m.state}
}

func (m *Memory) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	return m.read().GetProduct(ctx, productID)
}

func (m *Memory) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	return m.read().GetCoupon(ctx, code)
}

func (m *Memory) GetCart(ctx context.Context, userID string) ([]models.CartItem, error) {
	return m.read().GetCart(ctx, userID)
}

func (m *Memory) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return m.read().GetOrder(ctx, orderID)
}

func (m *Memory) GetOrderByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	return m.read().GetOrderByPaymentReference(ctx, reference)
}

func (m *Memory) ListOrders(ctx context.Context, filter OrderFilter) ([]*models.Order, int, error) {
	return m.read().ListOrders(ctx, filter)
}

func (m *Memory) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	return m.read().GetWallet(ctx, userID)
}

func (m *Memory) ListWalletTransactions(ctx context.Context, userID string, page Page) ([]models.WalletTransaction, int, error) {
	return m.read().ListWalletTransactions(ctx, userID, page)
}

// memoryReader reads from a state snapshot. The live state pointer is
// swapped on commit, so a captured snapshot stays consistent.
type memoryReader struct {
	state *memoryState
}

func (r memoryReader) GetProduct(_ context.Context, productID string) (*models.Product, error) {
	product, ok := r.state.products[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	product.InStock = product.Stock > 0
	return &product, nil
}

func (r memoryReader) GetCoupon(_ context.Context, code string) (*models.Coupon, error) {
	coupon, ok := r.state.coupons[models.NormalizeCouponCode(code)]
	if !ok {
		return nil, fmt.Errorf("coupon %s: %w", code, ErrNotFound)
	}
	return &coupon, nil
}

func (r memoryReader) GetCart(_ context.Context, userID string) ([]models.CartItem, error) {
	return slices.Clone(r.state.carts[userID]), nil
}

func (r memoryReader) GetOrder(_ context.Context, orderID string) (*models.Order, error) {
	order, ok := r.state.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return order.Clone(), nil
}

func (r memoryReader) GetOrderByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	orderID, ok := r.state.references[reference]
	if !ok || reference == "" {
		return nil, fmt.Errorf("payment reference %s: %w", reference, ErrNotFound)
	}
	return r.GetOrder(ctx, orderID)
}

func (r memoryReader) ListOrders(_ context.Context, filter OrderFilter) ([]*models.Order, int, error) {
	matched := make([]*models.Order, 0)
	for _, order := range r.state.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		matched = append(matched, order)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}

	out := make([]*models.Order, 0, end-start)
	for _, order := range matched[start:end] {
		out = append(out, order.Clone())
	}
	return out, total, nil
}

func (r memoryReader) GetWallet(_ context.Context, userID string) (*models.Wallet, error) {
	wallet, ok := r.state.wallets[userID]
	if !ok {
		return nil, fmt.Errorf("wallet for %s: %w", userID, ErrNotFound)
	}
	return &wallet, nil
}

func (r memoryReader) ListWalletTransactions(_ context.Context, userID string, page Page) ([]models.WalletTransaction, int, error) {
	ledger := r.state.transactions[userID]
	total := len(ledger)

	newestFirst := make([]models.WalletTransaction, 0, total)
	for i := total - 1; i >= 0; i-- {
		newestFirst = append(newestFirst, ledger[i])
	}
	start := min(page.Offset, total)
	end := total
	if page.Limit > 0 {
		end = min(start+page.Limit, total)
	}
	return newestFirst[start:end], total, nil
}

type memoryTx struct {
	memoryReader
	state *memoryState
	now   func() time.Time
}

func (t *memoryTx) CreateOrder(_ context.Context, order *models.Order) error {
	if order == nil || order.ID == "" {
		return fmt.Errorf("order id is required")
	}
	if _, exists := t.state.orders[order.ID]; exists {
		return fmt.Errorf("order %s: %w", order.ID, ErrDuplicate)
	}
	t.state.orders[order.ID] = order.Clone()
	if order.PaymentReference != "" {
		t.state.references[order.PaymentReference] = order.ID
	}
	return nil
}

func (t *memoryTx) UpdateOrder(_ context.Context, order *models.Order, from models.OrderStatus, entries ...models.TimelineEntry) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	current, ok := t.state.orders[order.ID]
	if !ok {
		return fmt.Errorf("order %s: %w", order.ID, ErrNotFound)
	}
	if current.Status != from {
		return fmt.Errorf("%w: expected %s, found %s", ErrInvalidStatusTransition, from, current.Status)
	}

	next := current.Clone()
	next.Status = order.Status
	next.PaymentStatus = order.PaymentStatus
	next.PaymentReference = order.PaymentReference
	next.StockReserved = order.StockReserved
	next.Carrier = order.Carrier
	next.TrackingNumber = order.TrackingNumber
	next.TrackingURL = order.TrackingURL
	next.UpdatedAt = order.UpdatedAt
	next.Timeline = append(next.Timeline, entries...)
	t.state.orders[order.ID] = next

	if current.PaymentReference != next.PaymentReference {
		delete(t.state.references, current.PaymentReference)
		if next.PaymentReference != "" {
			t.state.references[next.PaymentReference] = next.ID
		}
	}
	return nil
}

func (t *memoryTx) ReserveStock(_ context.Context, productID string, quantity int) error {
	product, ok := t.state.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	if quantity <= 0 || product.Stock < quantity {
		return fmt.Errorf("product %s: %w", productID, ErrInsufficientStock)
	}
	product.Stock -= quantity
	t.state.products[productID] = product
	return nil
}

func (t *memoryTx) ReleaseStock(_ context.Context, productID string, quantity int) error {
	product, ok := t.state.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	product.Stock += quantity
	t.state.products[productID] = product
	return nil
}

func (t *memoryTx) RedeemCoupon(_ context.Context, code string) error {
	normalized := models.NormalizeCouponCode(code)
	coupon, ok := t.state.coupons[normalized]
	if !ok {
		return fmt.Errorf("coupon %s: %w", normalized, ErrNotFound)
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return fmt.Errorf("coupon %s: %w", normalized, ErrCouponExhausted)
	}
	coupon.UsedCount++
	t.state.coupons[normalized] = coupon
	return nil
}

func (t *memoryTx) SetCartItem(_ context.Context, item models.CartItem) error {
	cart := slices.Clone(t.state.carts[item.UserID])
	idx := slices.IndexFunc(cart, func(existing models.CartItem) bool {
		return existing.ProductID == item.ProductID
	})
	switch {
	case item.Quantity <= 0 && idx >= 0:
		cart = slices.Delete(cart, idx, idx+1)
	case item.Quantity <= 0:
	case idx >= 0:
		cart[idx].Quantity = item.Quantity
	default:
		if item.AddedAt.IsZero() {
			item.AddedAt = t.now().UTC()
		}
		cart = append(cart, item)
	}
	t.state.carts[item.UserID] = cart
	return nil
}

func (t *memoryTx) RemoveCartItem(_ context.Context, userID, productID string) error {
	cart := slices.DeleteFunc(slices.Clone(t.state.carts[userID]), func(item models.CartItem) bool {
		return item.ProductID == productID
	})
	t.state.carts[userID] = cart
	return nil
}

func (t *memoryTx) ClearCart(_ context.Context, userID string) error {
	delete(t.state.carts, userID)
	return nil
}

func (t *memoryTx) DebitWallet(_ context.Context, entry WalletEntry) (*models.WalletTransaction, error) {
	if entry.Amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive")
	}
	wallet, ok := t.state.wallets[entry.UserID]
	if !ok || wallet.Balance < entry.Amount {
		return nil, ErrInsufficientBalance
	}
	return t.appendLedger(wallet, models.WalletDebit, entry)
}

func (t *memoryTx) CreditWallet(_ context.Context, entry WalletEntry) (*models.WalletTransaction, error) {
	if entry.Amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive")
	}
	wallet, ok := t.state.wallets[entry.UserID]
	if !ok {
		now := t.now().UTC()
		wallet = models.Wallet{
			ID:        uuid.NewString(),
			UserID:    entry.UserID,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return t.appendLedger(wallet, models.WalletCredit, entry)
}

func (t *memoryTx) appendLedger(wallet models.Wallet, kind models.WalletTransactionType, entry WalletEntry) (*models.WalletTransaction, error) {
	now := t.now().UTC()
	if kind == models.WalletDebit {
		wallet.Balance -= entry.Amount
	} else {
		wallet.Balance += entry.Amount
	}
	wallet.UpdatedAt = now

	txn := models.WalletTransaction{
		ID:           uuid.NewString(),
		WalletID:     wallet.ID,
		UserID:       wallet.UserID,
		Type:         kind,
		Amount:       entry.Amount,
		BalanceAfter: wallet.Balance,
		Description:  entry.Description,
		ReferenceID:  entry.ReferenceID,
		CreatedAt:    now,
	}
	t.state.wallets[wallet.UserID] = wallet
	t.state.transactions[wallet.UserID] = append(slices.Clone(t.state.transactions[wallet.UserID]), txn)
	return &txn, nil
}

func (t *memoryTx) UpsertProduct(_ context.Context, product models.Product) error {
	if product.ID == "" {
		return fmt.Errorf("product id is required")
	}
	t.state.products[product.ID] = product
	return nil
}

func (t *memoryTx) UpsertCoupon(_ context.Context, coupon models.Coupon) error {
	coupon.Code = models.NormalizeCouponCode(coupon.Code)
	if coupon.Code == "" {
		return fmt.Errorf("coupon code is required")
	}
	if existing, ok := t.state.coupons[coupon.Code]; ok {
		coupon.UsedCount = existing.UsedCount
	}
	t.state.coupons[coupon.Code] = coupon
	return nil
}
