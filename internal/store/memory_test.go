package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gitshopapp/storefront/internal/models"
)

func seedMemory(t *testing.T, fn func(ctx context.Context, tx Tx) error) *Memory {
	t.Helper()
	mem := NewMemory()
	if err := mem.WithTx(context.Background(), fn); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return mem
}

func TestMemoryWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	mem := seedMemory(t, func(ctx context.Context, tx Tx) error {
		return tx.UpsertProduct(ctx, models.Product{ID: "p1", Name: "Mug", Price: 300, MRP: 400, Stock: 5})
	})

	boom := errors.New("boom")
	err := mem.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.ReserveStock(ctx, "p1", 3); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, &models.Order{ID: "ORD-1", UserID: "u1", Status: models.StatusPendingPayment}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	product, err := mem.GetProduct(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetProduct() error = %v", err)
	}
	if product.Stock != 5 {
		t.Fatalf("expected stock 5 after rollback, got %d", product.Stock)
	}
	if _, err := mem.GetOrder(context.Background(), "ORD-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for rolled back order, got %v", err)
	}
}

func TestMemoryReserveStockIsConditional(t *testing.T) {
	t.Parallel()

	mem := seedMemory(t, func(ctx context.Context, tx Tx) error {
		return tx.UpsertProduct(ctx, models.Product{ID: "p1", Stock: 2})
	})

	err := mem.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.ReserveStock(ctx, "p1", 3)
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestMemoryUpdateOrderRequiresExpectedStatus(t *testing.T) {
	t.Parallel()

	mem := seedMemory(t, func(ctx context.Context, tx Tx) error {
		return tx.CreateOrder(ctx, &models.Order{ID: "ORD-1", Status: models.StatusConfirmed})
	})

	err := mem.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		order := &models.Order{ID: "ORD-1", Status: models.StatusConfirmed, PaymentStatus: models.PaymentStatusPaid}
		return tx.UpdateOrder(ctx, order, models.StatusPendingPayment)
	})
	if !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestMemoryRedeemCouponHonoursUsageLimit(t *testing.T) {
	t.Parallel()

	mem := seedMemory(t, func(ctx context.Context, tx Tx) error {
		return tx.UpsertCoupon(ctx, models.Coupon{Code: "once", UsageLimit: 1, IsActive: true})
	})

	redeem := func() error {
		return mem.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
			return tx.RedeemCoupon(ctx, "Once")
		})
	}
	if err := redeem(); err != nil {
		t.Fatalf("first redeem error = %v", err)
	}
	if err := redeem(); !errors.Is(err, ErrCouponExhausted) {
		t.Fatalf("expected ErrCouponExhausted, got %v", err)
	}

	coupon, err := mem.GetCoupon(context.Background(), "ONCE")
	if err != nil {
		t.Fatalf("GetCoupon() error = %v", err)
	}
	if coupon.UsedCount != 1 {
		t.Fatalf("expected usedCount 1, got %d", coupon.UsedCount)
	}
}

func TestMemoryConcurrentDebitsNeverOverspend(t *testing.T) {
	t.Parallel()

	mem := seedMemory(t, func(ctx context.Context, tx Tx) error {
		_, err := tx.CreditWallet(ctx, WalletEntry{UserID: "u1", Amount: 1000, Description: "top up"})
		return err
	})

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mem.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
				_, err := tx.DebitWallet(ctx, WalletEntry{UserID: "u1", Amount: 600})
				return err
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, ErrInsufficientBalance) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one debit to succeed, got %d", succeeded)
	}
	wallet, err := mem.GetWallet(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetWallet() error = %v", err)
	}
	if wallet.Balance != 400 {
		t.Fatalf("expected balance 400, got %d", wallet.Balance)
	}
}

func TestMemoryLedgerReplaysToBalance(t *testing.T) {
	t.Parallel()

	mem := NewMemory()
	ctx := context.Background()
	moves := []struct {
		credit bool
		amount int64
	}{{true, 500}, {false, 120}, {true, 80}, {false, 60}}
	for _, move := range moves {
		err := mem.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			entry := WalletEntry{UserID: "u1", Amount: move.amount}
			if move.credit {
				_, err := tx.CreditWallet(ctx, entry)
				return err
			}
			_, err := tx.DebitWallet(ctx, entry)
			return err
		})
		if err != nil {
			t.Fatalf("ledger move: %v", err)
		}
	}

	txns, total, err := mem.ListWalletTransactions(ctx, "u1", Page{})
	if err != nil {
		t.Fatalf("ListWalletTransactions() error = %v", err)
	}
	if total != len(moves) {
		t.Fatalf("expected %d transactions, got %d", len(moves), total)
	}

	var replayed int64
	for i := len(txns) - 1; i >= 0; i-- {
		if txns[i].Type == models.WalletCredit {
			replayed += txns[i].Amount
		} else {
			replayed -= txns[i].Amount
		}
		if replayed != txns[i].BalanceAfter {
			t.Fatalf("expected balanceAfter %d, got %d", replayed, txns[i].BalanceAfter)
		}
	}
	wallet, _ := mem.GetWallet(ctx, "u1")
	if wallet.Balance != replayed || replayed != 400 {
		t.Fatalf("expected balance 400, got wallet=%d replayed=%d", wallet.Balance, replayed)
	}
}

func TestMemoryListOrdersNewestFirstWithFilter(t *testing.T) {
	t.Parallel()

	base := models.Order{UserID: "u1"}
	mem := seedMemory(t, func(ctx context.Context, tx Tx) error {
		for i, status := range []models.OrderStatus{models.StatusPendingPayment, models.StatusConfirmed, models.StatusConfirmed} {
			order := base
			order.ID = string(rune('A' + i))
			order.Status = status
			order.CreatedAt = order.CreatedAt.AddDate(0, 0, i)
			if err := tx.CreateOrder(ctx, &order); err != nil {
				return err
			}
		}
		return tx.CreateOrder(ctx, &models.Order{ID: "Z", UserID: "u2", Status: models.StatusConfirmed})
	})

	orders, total, err := mem.ListOrders(context.Background(), OrderFilter{UserID: "u1", Status: models.StatusConfirmed, Limit: 1})
	if err != nil {
		t.Fatalf("ListOrders() error = %v", err)
	}
	if total != 2 {
		t.Fatalf("expected total 2, got %d", total)
	}
	if len(orders) != 1 || orders[0].ID != "C" {
		t.Fatalf("expected newest order C, got %+v", orders)
	}
}

func TestMemoryCartSetAndRemove(t *testing.T) {
	t.Parallel()

	mem := NewMemory()
	ctx := context.Background()
	err := mem.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.SetCartItem(ctx, models.CartItem{UserID: "u1", ProductID: "p1", Quantity: 2}); err != nil {
			return err
		}
		if err := tx.SetCartItem(ctx, models.CartItem{UserID: "u1", ProductID: "p2", Quantity: 1}); err != nil {
			return err
		}
		if err := tx.SetCartItem(ctx, models.CartItem{UserID: "u1", ProductID: "p1", Quantity: 4}); err != nil {
			return err
		}
		return tx.SetCartItem(ctx, models.CartItem{UserID: "u1", ProductID: "p2", Quantity: 0})
	})
	if err != nil {
		t.Fatalf("cart updates: %v", err)
	}

	cart, _ := mem.GetCart(ctx, "u1")
	if len(cart) != 1 || cart[0].ProductID != "p1" || cart[0].Quantity != 4 {
		t.Fatalf("unexpected cart %+v", cart)
	}
	if cart[0].AddedAt.IsZero() {
		t.Fatal("expected addedAt to be set")
	}
}

func TestClampPage(t *testing.T) {
	t.Parallel()

	if got := ClampPage(0, -3, 10, 50); got.Limit != 10 || got.Offset != 0 {
		t.Fatalf("expected defaults, got %+v", got)
	}
	if got := ClampPage(500, 20, 10, 50); got.Limit != 50 || got.Offset != 20 {
		t.Fatalf("expected clamped limit, got %+v", got)
	}
}
