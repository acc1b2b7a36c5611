package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"purchaseservice/internal/cart"
	"purchaseservice/internal/catalog"
	"purchaseservice/internal/purchase"

	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// statusFor maps a settlement error kind onto an HTTP status.
func statusFor(kind purchase.Kind) int {
	switch kind {
	case purchase.KindInvalidRequest, purchase.KindInsufficientInventory:
		return http.StatusBadRequest
	case purchase.KindUserNotFound, purchase.KindProductNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders any error from the engine, catalog or cart.
// Internal failures are logged and reported without detail.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, catalog.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", err.Error())
		return
	case errors.Is(err, catalog.ErrInvalidInput), errors.Is(err, cart.ErrInvalidItem):
		writeError(w, http.StatusBadRequest, purchase.KindInvalidRequest.String(), err.Error())
		return
	}

	kind := purchase.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		h.logger.Error("❌ Request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		writeError(w, status, kind.String(), "Internal server error")
		return
	}
	writeError(w, status, kind.String(), err.Error())
}
