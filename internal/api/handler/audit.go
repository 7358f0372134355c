package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/auditchain-platform/internal/domain"
	"go.uber.org/zap"
)

// AuditProvider — что хендлеру нужно от read-side сервиса
type AuditProvider interface {
	Query(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEvent, error)
	Verify(ctx context.Context, startID, endID string) (domain.VerifyResult, error)
}

type AuditHandler struct {
	service AuditProvider
	logger  *zap.Logger
}

func NewAuditHandler(s AuditProvider, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{service: s, logger: logger.Named("audit-handler")}
}

// Query возвращает события за интервал с опциональным фильтром по типу.
// GET /v1/audit/query?start=<RFC3339>&end=<RFC3339>&type=<optional>
func (h *AuditHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		http.Error(w, "invalid start timestamp", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		http.Error(w, "invalid end timestamp", http.StatusBadRequest)
		return
	}

	events, err := h.service.Query(r.Context(), domain.AuditFilter{
		Start:     start,
		End:       end,
		EventType: q.Get("type"),
	})
	if err != nil {
		// Наружу — generic 500, детали только в лог
		h.logger.Error("query failed", zap.Error(err))
		http.Error(w, "Failed to query audit log", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

// Verify проверяет участок цепочки между двумя id событий.
// GET /v1/audit/verify/{start_id}/{end_id}
func (h *AuditHandler) Verify(w http.ResponseWriter, r *http.Request) {
	startID := chi.URLParam(r, "start_id")
	endID := chi.URLParam(r, "end_id")
	if startID == "" || endID == "" {
		http.Error(w, "start_id and end_id are required", http.StatusBadRequest)
		return
	}

	res, err := h.service.Verify(r.Context(), startID, endID)
	if err != nil {
		h.logger.Error("verify failed", zap.Error(err))
		http.Error(w, "Failed to verify audit log", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}
