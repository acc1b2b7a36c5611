package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"purchaseservice/internal/purchase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	invalidPurchaseBody = "Invalid request body. Expected an array of products."
	purchaseSucceeded   = "Products purchased successfully"
	maxPurchaseBody     = 1 << 20
)

type PurchaseResponse struct {
	Message        string            `json:"message"`
	PurchasedItems []purchase.Record `json:"purchasedItems"`
}

// Purchase handles POST /users/{userID}/purchases.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	items, ok := decodePurchaseItems(r.Body)
	if !ok {
		writeError(w, http.StatusBadRequest, purchase.KindInvalidRequest.String(), invalidPurchaseBody)
		return
	}

	records, err := h.settler.Settle(r.Context(), userID, items)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.announce(r.Context(), userID, records)
	writeJSON(w, http.StatusOK, PurchaseResponse{Message: purchaseSucceeded, PurchasedItems: records})
}

// decodePurchaseItems accepts only a non-empty JSON array of items.
func decodePurchaseItems(body io.Reader) ([]purchase.Item, bool) {
	raw, err := io.ReadAll(io.LimitReader(body, maxPurchaseBody))
	if err != nil {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}

	var items []purchase.Item
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return nil, false
	}
	return items, true
}

// announce publishes a settled outcome. The purchase is already committed, so
// a publish failure is only logged.
func (h *Handler) announce(ctx context.Context, userID string, records []purchase.Record) {
	if h.publisher == nil {
		return
	}
	requestID := middleware.GetReqID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if err := h.publisher.PublishSettled(context.WithoutCancel(ctx), requestID, userID, records); err != nil {
		h.logger.Warn("Settled purchase not announced", zap.Error(err), zap.String("user_id", userID))
	}
}

// ListPurchases handles GET /users/{userID}/purchases.
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	records, err := h.users.Purchases(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
