package service

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/xela07ax/auditchain-platform/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthProvider описывает требования к хранилищу пользователей
type AuthProvider interface {
	Create(ctx context.Context, u *domain.User) error
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// AuditPublisher — доставка событий аудита в очередь Ingestor'а.
// Console никогда не пишет в цепочку сам.
type AuditPublisher interface {
	Audit(ctx context.Context, eventType, subjectID string, details interface{}) error
}

type AuthService struct {
	repo       AuthProvider
	audit      AuditPublisher
	privateKey *rsa.PrivateKey
	tokenTTL   time.Duration
	bcryptCost int
	logger     *zap.Logger
}

func NewAuthService(repo AuthProvider, audit AuditPublisher, privateKey *rsa.PrivateKey, tokenTTL time.Duration, bcryptCost int, logger *zap.Logger) *AuthService {
	if tokenTTL == 0 {
		tokenTTL = 24 * time.Hour
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		repo:       repo,
		audit:      audit,
		privateKey: privateKey,
		tokenTTL:   tokenTTL,
		bcryptCost: bcryptCost,
		logger:     logger.Named("auth-service"),
	}
}

// Register создает пользователя и фиксирует факт регистрации в журнале.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	if req.Username == "" || req.Password == "" {
		return nil, errors.New("username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth_service: hash password: %w", err)
	}

	u := &domain.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         "user",
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("auth_service: create user: %w", err)
	}

	// Событие аудита — асинхронно через очередь, не в обход цепочки.
	// Сбой публикации логируем, но регистрацию не откатываем.
	if err := s.audit.Audit(ctx, "user.registered", u.ID, map[string]interface{}{
		"username": u.Username,
	}); err != nil {
		s.logger.Error("failed to publish registration audit event",
			zap.String("user_id", u.ID), zap.Error(err))
	}

	return u, nil
}

// Profile возвращает пользователя по id из проверенного токена.
// nil без ошибки — пользователя больше нет (токен пережил учетку).
func (s *AuthService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("auth_service: get profile: %w", err)
	}
	return user, nil
}

// GenerateToken аутентифицирует и выдает RS256 JWT.
func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация (источник правды — Postgres)
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil || user == nil || !user.IsActive {
		return nil, errors.New("invalid credentials")
	}

	// 2. Проверка пароля (используем bcrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	// 3. Формирование Claims
	expiresAt := time.Now().Add(s.tokenTTL)
	claims := &domain.CustomClaims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "auditchain-console",
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	// 4. Подпись токена ЗАКРЫТЫМ КЛЮЧОМ (RS256)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	if err := s.audit.Audit(ctx, "user.login", user.ID, map[string]interface{}{
		"username": user.Username,
	}); err != nil {
		s.logger.Error("failed to publish login audit event",
			zap.String("user_id", user.ID), zap.Error(err))
	}

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	}, nil
}
