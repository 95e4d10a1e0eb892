package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/store"
)

func (r reader) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.q.QueryRow(ctx, `
		SELECT id, user_id, balance, created_at, updated_at
		FROM wallets
		WHERE user_id = $1`, userID).
		Scan(&wallet.ID, &wallet.UserID, &wallet.Balance, &wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "wallet for %s", userID)
	}
	return &wallet, nil
}

func (r reader) ListWalletTransactions(ctx context.Context, userID string, page store.Page) ([]models.WalletTransaction, int, error) {
	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM wallet_transactions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count wallet transactions: %w", err)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = total
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, wallet_id, user_id, type, amount, balance_after, description, reference_id, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3`, userID, limit, max(page.Offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]models.WalletTransaction, 0)
	for rows.Next() {
		var txn models.WalletTransaction
		if err := rows.Scan(&txn.ID, &txn.WalletID, &txn.UserID, &txn.Type, &txn.Amount,
			&txn.BalanceAfter, &txn.Description, &txn.ReferenceID, &txn.CreatedAt); err != nil {
			return nil, 0, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	return txns, total, nil
}

// DebitWallet subtracts entry.Amount only while the balance covers it.
func (t *tx) DebitWallet(ctx context.Context, entry store.WalletEntry) (*models.WalletTransaction, error) {
	if entry.Amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive")
	}
	now := t.now().UTC()

	var (
		walletID string
		balance  int64
	)
	err := t.q.QueryRow(ctx, `
		UPDATE wallets
		SET balance = balance - $2, updated_at = $3
		WHERE user_id = $1 AND balance >= $2
		RETURNING id, balance`, entry.UserID, entry.Amount, now).Scan(&walletID, &balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrInsufficientBalance
		}
		return nil, fmt.Errorf("failed to debit wallet: %w", err)
	}
	return t.insertTransaction(ctx, walletID, balance, models.WalletDebit, entry)
}

// CreditWallet adds entry.Amount, creating the wallet on first credit.
func (t *tx) CreditWallet(ctx context.Context, entry store.WalletEntry) (*models.WalletTransaction, error) {
	if entry.Amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive")
	}
	now := t.now().UTC()

	var (
		walletID string
		balance  int64
	)
	err := t.q.QueryRow(ctx, `
		INSERT INTO wallets (id, user_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = wallets.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		RETURNING id, balance`, uuid.NewString(), entry.UserID, entry.Amount, now).Scan(&walletID, &balance)
	if err != nil {
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}
	return t.insertTransaction(ctx, walletID, balance, models.WalletCredit, entry)
}

func (t *tx) insertTransaction(ctx context.Context, walletID string, balance int64, kind models.WalletTransactionType, entry store.WalletEntry) (*models.WalletTransaction, error) {
	txn := models.WalletTransaction{
		ID:           uuid.NewString(),
		WalletID:     walletID,
		UserID:       entry.UserID,
		Type:         kind,
		Amount:       entry.Amount,
		BalanceAfter: balance,
		Description:  entry.Description,
		ReferenceID:  entry.ReferenceID,
		CreatedAt:    t.now().UTC(),
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO wallet_transactions (id, wallet_id, user_id, type, amount, balance_after, description, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		txn.ID, txn.WalletID, txn.UserID, string(txn.Type), txn.Amount, txn.BalanceAfter,
		txn.Description, txn.ReferenceID, txn.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append wallet transaction: %w", err)
	}
	return &txn, nil
}
