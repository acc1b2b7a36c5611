package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"purchaseservice/internal/cart"
	"purchaseservice/internal/purchase"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type UpdateQuantityRequest struct {
	Delta int `json:"delta"`
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	items, err := h.carts.Get(r.Context(), chi.URLParam(r, "userID"))
	h.writeCart(w, r, items, err)
}

// AddCartItem fills a missing title from the catalog, which also rejects
// unknown products before they reach the cart.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var item cart.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, purchase.KindInvalidRequest.String(), "Invalid JSON body")
		return
	}

	if item.ProductID != "" {
		product, err := h.products.GetProduct(r.Context(), item.ProductID)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		if item.Title == "" {
			item.Title = product.Title
		}
	}

	items, err := h.carts.Add(r.Context(), chi.URLParam(r, "userID"), item)
	h.writeCart(w, r, items, err)
}

func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, purchase.KindInvalidRequest.String(), "Invalid JSON body")
		return
	}

	items, err := h.carts.UpdateQuantity(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "productID"), req.Delta)
	h.writeCart(w, r, items, err)
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	items, err := h.carts.Remove(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "productID"))
	h.writeCart(w, r, items, err)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), chi.URLParam(r, "userID")); err != nil {
		h.writeDomainError(w, r, &purchase.StoreError{Op: "clear cart", Err: err})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	records, err := cart.Checkout(r.Context(), h.carts, h.settler, userID)
	var clearErr *cart.ClearError
	if errors.As(err, &clearErr) {
		h.logger.Warn("Cart not cleared after checkout", zap.Error(err), zap.String("user_id", userID))
		err = nil
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.announce(r.Context(), userID, records)
	writeJSON(w, http.StatusOK, PurchaseResponse{Message: purchaseSucceeded, PurchasedItems: records})
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, items []cart.Item, err error) {
	if err != nil {
		if !errors.Is(err, cart.ErrInvalidItem) {
			err = &purchase.StoreError{Op: "cart", Err: err}
		}
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
