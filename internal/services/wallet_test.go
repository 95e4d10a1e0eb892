package services

import (
	"context"
	"errors"
	"testing"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/store"
)

func TestWalletService_BalanceDefaultsToZero(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	wallet, err := f.wallets.Balance(context.Background(), "newcomer")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if wallet.Balance != 0 || wallet.UserID != "newcomer" {
		t.Fatalf("unexpected wallet %+v", wallet)
	}
	if err := f.wallets.VerifyLedger(context.Background(), "newcomer"); err != nil {
		t.Fatalf("expected empty ledger to verify, got %v", err)
	}

	_, err = f.wallets.Balance(context.Background(), "")
	assertCode(t, err, CodeUnauthorized)
}

func TestWalletService_Credit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		userID  string
		req     CreditRequest
		want    ErrorCode
		balance int64
	}{
		{name: "top up", userID: "user-1", req: CreditRequest{Amount: 500}, balance: 500},
		{name: "zero amount", userID: "user-1", req: CreditRequest{Amount: 0}, want: CodeValidation},
		{name: "negative amount", userID: "user-1", req: CreditRequest{Amount: -5}, want: CodeValidation},
		{name: "missing user", userID: " ", req: CreditRequest{Amount: 10}, want: CodeValidation},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			txn, err := f.wallets.Credit(context.Background(), tt.userID, tt.req)
			if tt.want != "" {
				assertCode(t, err, tt.want)
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if txn.Type != models.WalletCredit || txn.BalanceAfter != tt.balance || txn.Description != "Wallet top-up" {
				t.Fatalf("unexpected transaction %+v", txn)
			}
			if got := f.balance(t, tt.userID); got != tt.balance {
				t.Fatalf("expected balance %d, got %d", tt.balance, got)
			}
		})
	}
}

func TestWalletService_TransactionsNewestFirst(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for _, amount := range []int64{100, 200, 300} {
		f.fund(t, "user-1", amount)
	}

	page, err := f.wallets.Transactions(context.Background(), "user-1", 1, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if page.Total != 3 || len(page.Transactions) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Transactions[0].Amount != 300 || page.Transactions[1].Amount != 200 {
		t.Fatalf("expected newest first, got %+v", page.Transactions)
	}

	empty, err := f.wallets.Transactions(context.Background(), "nobody", 1, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if empty.Transactions == nil || empty.Limit != defaultLedgerPageSize {
		t.Fatalf("expected empty, non-nil page with default limit, got %+v", empty)
	}
}

// driftStore reports a wallet balance that disagrees with the ledger.
type driftStore struct {
	*store.Memory
	balance int64
}

func (d driftStore) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	wallet, err := d.Memory.GetWallet(ctx, userID)
	if err == nil {
		wallet.Balance = d.balance
	}
	return wallet, err
}

func TestWalletService_VerifyLedgerDetectsDrift(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.fund(t, "user-1", 700)
	if err := f.wallets.VerifyLedger(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected ledger to verify, got %v", err)
	}

	drifted := NewWalletService(driftStore{Memory: f.store, balance: 650}, nil)
	err := drifted.VerifyLedger(context.Background(), "user-1")
	var mismatch *LedgerMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ledger mismatch, got %v", err)
	}
	if mismatch.Balance != 650 || mismatch.Replayed != 700 {
		t.Fatalf("unexpected mismatch %+v", mismatch)
	}
}
