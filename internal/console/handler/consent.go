package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/auditchain-platform/internal/console/service"
	"github.com/xela07ax/auditchain-platform/internal/infra/auth"
)

type ConsentHandler struct {
	service *service.ConsentService
}

func NewConsentHandler(s *service.ConsentService) *ConsentHandler {
	return &ConsentHandler{service: s}
}

type grantConsentRequest struct {
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Grant создает согласие текущего пользователя.
// POST /v1/consents
func (h *ConsentHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req grantConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	userID := auth.UserID(r.Context())
	consent, err := h.service.Grant(r.Context(), userID, req.Scope, req.ExpiresAt)
	if err != nil {
		http.Error(w, "failed to grant consent", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(consent)
}

// Revoke отзывает согласие текущего пользователя.
// POST /v1/consents/{id}/revoke
func (h *ConsentHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "consent id is required", http.StatusBadRequest)
		return
	}

	if err := h.service.Revoke(r.Context(), id, auth.UserID(r.Context())); err != nil {
		http.Error(w, "failed to revoke consent", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List отдает все согласия текущего пользователя.
// GET /v1/consents
func (h *ConsentHandler) List(w http.ResponseWriter, r *http.Request) {
	consents, err := h.service.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		http.Error(w, "failed to list consents", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(consents)
}
