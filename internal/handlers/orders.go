package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/models"
	"github.com/gitshopapp/storefront/internal/services"
)

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=280"`
}

// ListOrders handles GET /api/orders?status=&page=&limit=.
func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
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
	status := models.OrderStatus(strings.TrimSpace(r.URL.Query().Get("status")))

	list, err := h.orders.List(r.Context(), principalFromRequest(r).UserID, status, page, limit)
	if err != nil {
		h.writeServiceError(w, r, "orders.list", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, list)
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), principalFromRequest(r).UserID, mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, "orders.get", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}

// CancelOrder handles POST /api/orders/{id}/cancel. The body is optional.
func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var body cancelOrderRequest
	if err := decodeOptionalJSON(w, r, &body); err != nil {
		h.writeError(w, r, services.CodeValidation, err.Error())
		return
	}

	order, err := h.orders.Cancel(r.Context(), principalFromRequest(r).UserID, mux.Vars(r)["id"], body.Reason)
	if err != nil {
		h.writeServiceError(w, r, "orders.cancel", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}

// RetryPayment handles POST /api/orders/{id}/payment.
func (h *Handlers) RetryPayment(w http.ResponseWriter, r *http.Request) {
	result, err := h.checkout.RetryPayment(r.Context(), principalFromRequest(r).UserID, mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, "orders.retry_payment", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, result)
}
