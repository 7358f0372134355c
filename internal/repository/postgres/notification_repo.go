package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/auditchain-platform/internal/domain"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

func (r *NotificationRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS notification_preferences (
			user_id       UUID PRIMARY KEY REFERENCES users(id),
			email_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			sms_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
			push_enabled  BOOLEAN NOT NULL DEFAULT FALSE,
			email         TEXT NOT NULL DEFAULT '',
			phone_number  TEXT NOT NULL DEFAULT '',
			push_token    TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return fmt.Errorf("postgres: create notification_preferences: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS notification_history (
			id                BIGSERIAL PRIMARY KEY,
			user_id           UUID NOT NULL,
			notification_type TEXT NOT NULL,
			channel           TEXT NOT NULL,
			content           TEXT NOT NULL,
			status            TEXT NOT NULL,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("postgres: create notification_history: %w", err)
	}
	return nil
}

// GetPreferences возвращает nil без ошибки, если пользователь не настраивал каналы.
func (r *NotificationRepo) GetPreferences(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	p := &domain.NotificationPreferences{}
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, email_enabled, sms_enabled, push_enabled, email, phone_number, push_token
		FROM notification_preferences WHERE user_id = $1`,
		userID).Scan(&p.UserID, &p.EmailEnabled, &p.SMSEnabled, &p.PushEnabled, &p.Email, &p.PhoneNumber, &p.PushToken)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get preferences: %w", err)
	}
	return p, nil
}

// UpsertPreferences — пользователь правит свои каналы одной операцией.
func (r *NotificationRepo) UpsertPreferences(ctx context.Context, p *domain.NotificationPreferences) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_preferences (user_id, email_enabled, sms_enabled, push_enabled, email, phone_number, push_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled,
			sms_enabled   = EXCLUDED.sms_enabled,
			push_enabled  = EXCLUDED.push_enabled,
			email         = EXCLUDED.email,
			phone_number  = EXCLUDED.phone_number,
			push_token    = EXCLUDED.push_token`,
		p.UserID, p.EmailEnabled, p.SMSEnabled, p.PushEnabled, p.Email, p.PhoneNumber, p.PushToken)
	if err != nil {
		return fmt.Errorf("postgres: upsert preferences: %w", err)
	}
	return nil
}

func (r *NotificationRepo) RecordDelivery(ctx context.Context, rec *domain.NotificationRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_history (user_id, notification_type, channel, content, status)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.UserID, rec.Type, rec.Channel, rec.Content, rec.Status)
	if err != nil {
		return fmt.Errorf("postgres: record delivery: %w", err)
	}
	return nil
}

// RecentFailed — свежие неудачные доставки для периодического ретрая.
func (r *NotificationRepo) RecentFailed(ctx context.Context) ([]domain.NotificationRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, notification_type, channel, content, status, created_at, updated_at
		FROM notification_history
		WHERE status = $1 AND created_at > NOW() - INTERVAL '24 hours'
		ORDER BY created_at ASC`,
		domain.NotificationFailed)
	if err != nil {
		return nil, fmt.Errorf("postgres: query failed notifications: %w", err)
	}
	defer rows.Close()

	records := make([]domain.NotificationRecord, 0)
	for rows.Next() {
		var rec domain.NotificationRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Type, &rec.Channel, &rec.Content, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan notification record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *NotificationRepo) MarkRetried(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_history SET status = $1, updated_at = NOW() WHERE id = $2`,
		domain.NotificationRetried, id)
	if err != nil {
		return fmt.Errorf("postgres: mark retried: %w", err)
	}
	return nil
}
