package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/auditchain-platform/internal/domain"
	"go.uber.org/zap"
)

// PreferencesProvider — хранилище настроек каналов уведомлений
type PreferencesProvider interface {
	GetPreferences(ctx context.Context, userID string) (*domain.NotificationPreferences, error)
	UpsertPreferences(ctx context.Context, p *domain.NotificationPreferences) error
}

type PreferencesService struct {
	repo   PreferencesProvider
	audit  AuditPublisher
	logger *zap.Logger
}

func NewPreferencesService(repo PreferencesProvider, audit AuditPublisher, logger *zap.Logger) *PreferencesService {
	return &PreferencesService{
		repo:   repo,
		audit:  audit,
		logger: logger.Named("preferences-service"),
	}
}

// Get возвращает дефолты, если пользователь ничего не настраивал.
func (s *PreferencesService) Get(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	p, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("preferences_service: get: %w", err)
	}
	if p == nil {
		return &domain.NotificationPreferences{UserID: userID, EmailEnabled: true}, nil
	}
	return p, nil
}

func (s *PreferencesService) Update(ctx context.Context, p *domain.NotificationPreferences) error {
	if err := s.repo.UpsertPreferences(ctx, p); err != nil {
		return fmt.Errorf("preferences_service: update: %w", err)
	}

	if err := s.audit.Audit(ctx, "notification.preferences_updated", p.UserID, map[string]interface{}{
		"email_enabled": p.EmailEnabled,
		"sms_enabled":   p.SMSEnabled,
		"push_enabled":  p.PushEnabled,
	}); err != nil {
		s.logger.Error("failed to publish preferences audit event", zap.Error(err))
	}
	return nil
}
