package models

import "time"

type WalletTransactionType string

const (
	WalletCredit WalletTransactionType = "credit"
	WalletDebit  WalletTransactionType = "debit"
)

type Wallet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WalletTransaction is an immutable ledger row.
type WalletTransaction struct {
	ID           string                `json:"id"`
	WalletID     string                `json:"walletId"`
	UserID       string                `json:"userId"`
	Type         WalletTransactionType `json:"type"`
	Amount       int64                 `json:"amount"`
	BalanceAfter int64                 `json:"balanceAfter"`
	Description  string                `json:"description"`
	ReferenceID  string                `json:"referenceId,omitempty"`
	CreatedAt    time.Time             `json:"createdAt"`
}
