package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/auditchain-platform/internal/api/handler"
	"go.uber.org/zap"
)

// APIServer — read-only поверхность журнала.
// Здесь принципиально НЕТ мутирующих роутов: единственный путь записи
// в цепочку — очередь, которую вычитывает Ingestor.
type APIServer struct {
	router *chi.Mux
	logger *zap.Logger

	auditHandler *handler.AuditHandler // /v1/audit (query + verify)
}

func NewAPIServer(logger *zap.Logger, auditH *handler.AuditHandler) *APIServer {
	s := &APIServer{
		router:       chi.NewRouter(),
		logger:       logger.Named("audit-api"),
		auditHandler: auditH,
	}
	s.routes()
	return s
}

func (s *APIServer) routes() {
	r := s.router

	// Глобальные инфраструктурные Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Healthcheck для мониторинга
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Чтение журнала и проверка целостности
	r.Route("/v1/audit", func(r chi.Router) {
		r.Get("/query", s.auditHandler.Query)
		r.Get("/verify/{start_id}/{end_id}", s.auditHandler.Verify)
	})
}

// ServeHTTP позволяет использовать APIServer как стандартный http.Handler
func (s *APIServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
