package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/auditchain-platform/internal/domain"
	"go.uber.org/zap"
)

// ConsentProvider описывает требования к хранилищу согласий
type ConsentProvider interface {
	Create(ctx context.Context, c *domain.Consent) error
	Revoke(ctx context.Context, id, userID string) error
	ListByUser(ctx context.Context, userID string) ([]domain.Consent, error)
}

type ConsentService struct {
	repo   ConsentProvider
	audit  AuditPublisher
	logger *zap.Logger
}

func NewConsentService(repo ConsentProvider, audit AuditPublisher, logger *zap.Logger) *ConsentService {
	return &ConsentService{
		repo:   repo,
		audit:  audit,
		logger: logger.Named("consent-service"),
	}
}

func (s *ConsentService) Grant(ctx context.Context, userID, scope string, expiresAt time.Time) (*domain.Consent, error) {
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	c := &domain.Consent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Scope:     scope,
		Status:    domain.ConsentActive,
		ExpiresAt: expiresAt,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("consent_service: grant: %w", err)
	}

	if err := s.audit.Audit(ctx, "consent.granted", userID, map[string]interface{}{
		"consent_id": c.ID,
		"scope":      scope,
	}); err != nil {
		s.logger.Error("failed to publish consent audit event", zap.Error(err))
	}
	return c, nil
}

func (s *ConsentService) Revoke(ctx context.Context, id, userID string) error {
	if err := s.repo.Revoke(ctx, id, userID); err != nil {
		return fmt.Errorf("consent_service: revoke: %w", err)
	}

	if err := s.audit.Audit(ctx, "consent.revoked", userID, map[string]interface{}{
		"consent_id": id,
	}); err != nil {
		s.logger.Error("failed to publish consent audit event", zap.Error(err))
	}
	return nil
}

func (s *ConsentService) List(ctx context.Context, userID string) ([]domain.Consent, error) {
	consents, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("consent_service: list: %w", err)
	}
	// Гарантируем [] вместо null в JSON
	if consents == nil {
		return []domain.Consent{}, nil
	}

	// Статус "expired" — производный от времени, строку в БД не переписываем:
	// истечение срока не действие, его некому фиксировать в журнале
	now := time.Now()
	for i := range consents {
		c := &consents[i]
		if c.Status == domain.ConsentActive && !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now) {
			c.Status = domain.ConsentExpired
		}
	}
	return consents, nil
}
