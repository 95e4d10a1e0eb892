package handlers

import (
	"net/http"

	"github.com/gitshopapp/storefront/internal/services"
)

func (h *Handlers) GetWallet(w http.ResponseWriter, r *http.Request) {
	balance, err := h.wallets.Balance(r.Context(), principalFromRequest(r).UserID)
	if err != nil {
		h.writeServiceError(w, r, "wallet.balance", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, balance)
}

// ListWalletTransactions handles GET /api/wallet/transactions?page=&limit=,
// newest first.
func (h *Handlers) ListWalletTransactions(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		h.writeError(w, r, services.CodeValidation, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		h.writeError(w, r, services.CodeValidation, err.Error())
		return
	}

	list, err := h.wallets.Transactions(r.Context(), principalFromRequest(r).UserID, page, limit)
	if err != nil {
		h.writeServiceError(w, r, "wallet.transactions", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, list)
}
