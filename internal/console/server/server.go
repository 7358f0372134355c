package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/auditchain-platform/internal/console/handler"
	"github.com/xela07ax/auditchain-platform/internal/infra/auth"
	"go.uber.org/zap"
)

// ConsoleServer — пользовательская поверхность платформы (CRUD-глюе).
// Все мутации здесь публикуют события аудита в очередь; прямого доступа
// к цепочке у консоли нет.
type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	authValidator auth.TokenValidator

	authHandler    *handler.AuthHandler        // /auth/*
	consentHandler *handler.ConsentHandler     // /v1/consents
	prefsHandler   *handler.PreferencesHandler // /v1/notifications/preferences
}

func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	consentH *handler.ConsentHandler,
	prefsH *handler.PreferencesHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:         chi.NewRouter(),
		logger:         logger.Named("console-api"),
		authValidator:  validator,
		authHandler:    authH,
		consentHandler: consentH,
		prefsHandler:   prefsH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		r.Post("/auth/register", s.authHandler.Register)
		r.Post("/auth/token", s.authHandler.Login)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Учетка владельца токена
		r.Get("/v1/profile", s.authHandler.Profile)

		// Согласия пользователя
		r.Route("/v1/consents", func(r chi.Router) {
			r.Get("/", s.consentHandler.List)
			r.Post("/", s.consentHandler.Grant)
			r.Post("/{id}/revoke", s.consentHandler.Revoke)
		})

		// Каналы уведомлений
		r.Route("/v1/notifications", func(r chi.Router) {
			r.Get("/preferences", s.prefsHandler.Get)
			r.Put("/preferences", s.prefsHandler.Update)
		})
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
