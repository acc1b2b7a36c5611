package httpapi

import (
	"encoding/json"
	"net/http"

	"purchaseservice/internal/purchase"

	"github.com/go-chi/chi/v5"
)

type CreateUserRequest struct {
	Email string `json:"email"`
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, purchase.KindInvalidRequest.String(), "Invalid JSON body")
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Email)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	paging, err := parsePaging(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, purchase.KindInvalidRequest.String(), err.Error())
		return
	}

	users, total, err := h.users.ListUsers(r.Context(), paging)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(users, paging, total))
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeleteUser(r.Context(), chi.URLParam(r, "userID")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
