package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/auditchain-platform/internal/domain"
	"go.uber.org/zap"
)

type ctxKey string

// CtxUserID — единственное, что периметр кладет в контекст запроса.
// Роль остается в claims: авторизация по ролям решается там, где
// появится первый роут, которому она нужна.
const CtxUserID ctxKey = "user_id"

// TokenValidator — интерфейс проверки токена для HTTP-периметра
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), CtxUserID, claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID достает ID пользователя, положенный middleware'ом.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(CtxUserID).(string)
	return id
}
