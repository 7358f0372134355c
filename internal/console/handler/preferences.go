package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/auditchain-platform/internal/console/service"
	"github.com/xela07ax/auditchain-platform/internal/domain"
	"github.com/xela07ax/auditchain-platform/internal/infra/auth"
)

type PreferencesHandler struct {
	service *service.PreferencesService
}

func NewPreferencesHandler(s *service.PreferencesService) *PreferencesHandler {
	return &PreferencesHandler{service: s}
}

// Get — текущие каналы доставки пользователя.
// GET /v1/notifications/preferences
func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.service.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		http.Error(w, "failed to fetch preferences", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prefs)
}

// Update — полная замена настроек каналов.
// PUT /v1/notifications/preferences
func (h *PreferencesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var prefs domain.NotificationPreferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	// user_id берем из токена, а не из тела — чужие настройки не правим
	prefs.UserID = auth.UserID(r.Context())

	if err := h.service.Update(r.Context(), &prefs); err != nil {
		http.Error(w, "failed to update preferences", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
