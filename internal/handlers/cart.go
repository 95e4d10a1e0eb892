package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/services"
)

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.Get(r.Context(), principalFromRequest(r).UserID)
	if err != nil {
		h.writeServiceError(w, r, "cart.get", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, view)
}

// SetCartItem handles PUT /api/cart/items. Quantity 0 removes the line.
func (h *Handlers) SetCartItem(w http.ResponseWriter, r *http.Request) {
	var body services.SetCartItemRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.writeError(w, r, services.CodeValidation, err.Error())
		return
	}

	view, err := h.carts.SetItem(r.Context(), principalFromRequest(r).UserID, body)
	if err != nil {
		h.writeServiceError(w, r, "cart.set_item", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, view)
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.RemoveItem(r.Context(), principalFromRequest(r).UserID, mux.Vars(r)["productId"])
	if err != nil {
		h.writeServiceError(w, r, "cart.remove_item", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, view)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), principalFromRequest(r).UserID); err != nil {
		h.writeServiceError(w, r, "cart.clear", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
