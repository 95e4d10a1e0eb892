package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/services"
)

// AdminTransitionOrder handles POST /api/admin/orders/{id}/status.
func (h *Handlers) AdminTransitionOrder(w http.ResponseWriter, r *http.Request) {
	var body services.TransitionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, services.CodeValidation, err.Error())
		return
	}

	orderID := mux.Vars(r)["id"]
	order, err := h.orders.AdminTransition(r.Context(), orderID, body)
	if err != nil {
		h.writeServiceError(w, r, "admin.orders.transition", err)
		return
	}
	h.loggerFromContext(r.Context()).Info("admin changed order status",
		"order_id", orderID,
		"status", order.Status,
		"admin_id", principalFromRequest(r).UserID,
	)
	h.writeJSON(w, r, http.StatusOK, order)
}

// AdminCreditWallet handles POST /api/admin/wallets/{userId}/credit.
func (h *Handlers) AdminCreditWallet(w http.ResponseWriter, r *http.Request) {
	var body services.CreditRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, services.CodeValidation, err.Error())
		return
	}

	userID := mux.Vars(r)["userId"]
	txn, err := h.wallets.Credit(r.Context(), userID, body)
	if err != nil {
		h.writeServiceError(w, r, "admin.wallets.credit", err)
		return
	}
	h.loggerFromContext(r.Context()).Info("admin credited wallet",
		"wallet_user_id", userID,
		"amount", txn.Amount,
		"admin_id", principalFromRequest(r).UserID,
	)
	h.writeJSON(w, r, http.StatusCreated, txn)
}
