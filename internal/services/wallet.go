package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/observability"
	"github.com/gitshopapp/storefront/internal/store"
)

const (
	defaultLedgerPageSize = 20
	maxLedgerPageSize     = 100
	// ledgerReplayBatch bounds each read while replaying a full ledger.
	ledgerReplayBatch = 500
)

type WalletService struct {
	store  store.Store
	now    func() time.Time
	logger *slog.Logger
}

func NewWalletService(s store.Store, logger *slog.Logger) *WalletService {
	return &WalletService{store: s, now: time.Now, logger: logger}
}

func (s *WalletService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type WalletBalance struct {
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
}

// Balance returns the user's balance. Users without a wallet have zero.
func (s *WalletService) Balance(ctx context.Context, userID string) (*WalletBalance, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(CodeUnauthorized, "Authentication required", nil)
	}
	wallet, err := s.store.GetWallet(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &WalletBalance{UserID: userID}, nil
	case err != nil:
		s.loggerFromContext(ctx).Error("failed to get wallet", "error", err, "user_id", userID)
		return nil, internalError(err)
	}
	return &WalletBalance{UserID: userID, Balance: wallet.Balance}, nil
}

type TransactionList struct {
	Transactions []models.WalletTransaction `json:"transactions"`
	Total        int                        `json:"total"`
	Page         int                        `json:"page"`
	Limit        int                        `json:"limit"`
}

// Transactions returns the ledger newest first. page is 1-based.
func (s *WalletService) Transactions(ctx context.Context, userID string, page, limit int) (*TransactionList, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(CodeUnauthorized, "Authentication required", nil)
	}
	if page < 1 {
		page = 1
	}
	window := store.ClampPage(limit, 0, defaultLedgerPageSize, maxLedgerPageSize)
	window.Offset = (page - 1) * window.Limit

	txns, total, err := s.store.ListWalletTransactions(ctx, userID, window)
	if err != nil {
		s.loggerFromContext(ctx).Error("failed to list wallet transactions", "error", err, "user_id", userID)
		return nil, internalError(err)
	}
	if txns == nil {
		txns = []models.WalletTransaction{}
	}
	return &TransactionList{Transactions: txns, Total: total, Page: page, Limit: window.Limit}, nil
}

type CreditRequest struct {
	Amount      int64  `json:"amount" validate:"required,min=1"`
	Description string `json:"description" validate:"max=280"`
	ReferenceID string `json:"referenceId" validate:"max=128"`
}

// Credit tops up a wallet, creating it on first use.
func (s *WalletService) Credit(ctx context.Context, userID string, req CreditRequest) (*models.WalletTransaction, error) {
	span := sentry.StartSpan(
		ctx,
		"service.wallet.credit",
		sentry.WithOpName("service.wallet"),
		sentry.WithDescription("Credit"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	if strings.TrimSpace(userID) == "" {
		return nil, newError(CodeValidation, "User id is required", nil)
	}
	if req.Amount <= 0 {
		return nil, newError(CodeValidation, "Amount must be a positive number of rupees", nil)
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Wallet top-up"
	}

	var txn *models.WalletTransaction
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		txn, err = tx.CreditWallet(ctx, store.WalletEntry{
			UserID:      userID,
			Amount:      req.Amount,
			ReferenceID: strings.TrimSpace(req.ReferenceID),
			Description: description,
		})
		return err
	})
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		s.loggerFromContext(ctx).Error("failed to credit wallet", "error", err, "user_id", userID)
		return nil, internalError(err)
	}

	observability.MeterFromContext(ctx).Count("wallet.credit", 1)
	s.loggerFromContext(ctx).Info("wallet credited", "user_id", userID, "amount", req.Amount, "balance", txn.BalanceAfter)
	span.Status = sentry.SpanStatusOK
	return txn, nil
}

// LedgerMismatchError reports a wallet whose balance differs from the replay
// of its transactions.
type LedgerMismatchError struct {
	UserID   string
	Balance  int64
	Replayed int64
}

func (e *LedgerMismatchError) Error() string {
	return fmt.Sprintf("wallet %s balance %d does not match ledger replay %d", e.UserID, e.Balance, e.Replayed)
}

// VerifyLedger replays every transaction of the user's wallet oldest first
// and checks that each balanceAfter and the final balance agree.
func (s *WalletService) VerifyLedger(ctx context.Context, userID string) error {
	wallet, err := s.store.GetWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to get wallet: %w", err)
	}

	var all []models.WalletTransaction
	for offset := 0; ; offset += ledgerReplayBatch {
		page, total, err := s.store.ListWalletTransactions(ctx, userID, store.Page{Limit: ledgerReplayBatch, Offset: offset})
		if err != nil {
			return fmt.Errorf("failed to list wallet transactions: %w", err)
		}
		all = append(all, page...)
		if len(page) == 0 || len(all) >= total {
			break
		}
	}

	var replayed int64
	for i := len(all) - 1; i >= 0; i-- {
		txn := all[i]
		switch txn.Type {
		case models.WalletCredit:
			replayed += txn.Amount
		case models.WalletDebit:
			replayed -= txn.Amount
		default:
			return fmt.Errorf("transaction %s has unknown type %q", txn.ID, txn.Type)
		}
		if replayed < 0 {
			return fmt.Errorf("transaction %s drives wallet %s negative", txn.ID, userID)
		}
		if txn.BalanceAfter != replayed {
			return &LedgerMismatchError{UserID: userID, Balance: txn.BalanceAfter, Replayed: replayed}
		}
	}
	if replayed != wallet.Balance {
		return &LedgerMismatchError{UserID: userID, Balance: wallet.Balance, Replayed: replayed}
	}
	return nil
}
