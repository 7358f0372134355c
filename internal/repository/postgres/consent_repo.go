package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/auditchain-platform/internal/domain"
)

type ConsentRepo struct {
	pool *pgxpool.Pool
}

func NewConsentRepo(pool *pgxpool.Pool) *ConsentRepo {
	return &ConsentRepo{pool: pool}
}

func (r *ConsentRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS consents (
			id         UUID PRIMARY KEY,
			user_id    UUID NOT NULL REFERENCES users(id),
			scope      TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("postgres: create consents: %w", err)
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_consents_user ON consents(user_id)`)
	if err != nil {
		return fmt.Errorf("postgres: create consents index: %w", err)
	}
	return nil
}

func (r *ConsentRepo) Create(ctx context.Context, c *domain.Consent) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO consents (id, user_id, scope, status, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		c.ID, c.UserID, c.Scope, c.Status, c.ExpiresAt).
		Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create consent: %w", err)
	}
	return nil
}

// Revoke переводит согласие в revoked. Возвращает ошибку, если строки нет.
func (r *ConsentRepo) Revoke(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE consents SET status = 'revoked'
		WHERE id = $1 AND user_id = $2 AND status = 'active'`,
		id, userID)
	if err != nil {
		return fmt.Errorf("postgres: revoke consent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: consent %s not found or not active", id)
	}
	return nil
}

func (r *ConsentRepo) ListByUser(ctx context.Context, userID string) ([]domain.Consent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, scope, status, created_at, expires_at
		FROM consents WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list consents: %w", err)
	}
	defer rows.Close()

	consents := make([]domain.Consent, 0)
	for rows.Next() {
		var c domain.Consent
		if err := rows.Scan(&c.ID, &c.UserID, &c.Scope, &c.Status, &c.CreatedAt, &c.ExpiresAt); err != nil {
			return nil, fmt.Errorf("postgres: scan consent: %w", err)
		}
		consents = append(consents, c)
	}
	return consents, rows.Err()
}
