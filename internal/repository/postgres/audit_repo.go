package postgres

/*
Файл audit_repo.go — единственный владелец персистентности хеш-цепочки.

Ключевые свойства:
- Append-only: никаких UPDATE/DELETE по audit_events в рабочем коде.
  Таблицу защищает и сам Postgres (PK по id), и дисциплина single-writer
  на уровне Ingestor.
- seq BIGSERIAL — натуральный порядок цепочки. «Предыдущее» событие
  определяется однозначно по seq, а не по timestamp (таймстемпы продюсеров
  могут совпадать).
- Чтения всегда видят только закоммиченные строки (read committed) —
  Verifier никогда не наблюдает полузаписанную строку.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/auditchain-platform/internal/chain"
	"github.com/xela07ax/auditchain-platform/internal/domain"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// EnsureSchema создает таблицу и индексы, если их еще нет.
func (r *AuditRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			seq           BIGSERIAL UNIQUE,
			id            UUID PRIMARY KEY,
			ts            TIMESTAMPTZ NOT NULL,
			event_type    TEXT NOT NULL,
			subject_id    TEXT NOT NULL DEFAULT '',
			details       JSONB NOT NULL DEFAULT 'null',
			previous_hash CHAR(64) NOT NULL,
			current_hash  CHAR(64) NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("postgres: create audit_events: %w", err)
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events(ts, seq)`)
	if err != nil {
		return fmt.Errorf("postgres: create ts index: %w", err)
	}
	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type)`)
	if err != nil {
		return fmt.Errorf("postgres: create type index: %w", err)
	}
	return nil
}

// Append атомарно пишет одну запись с уже посчитанными полями цепочки.
// Дубликат id отлетает на PK — это StorageError для конкретного сообщения.
func (r *AuditRepo) Append(ctx context.Context, e *domain.AuditEvent) error {
	// nil маршалится в JSON null — это валидное jsonb-значение,
	// и ровно оно участвует в каноничной форме digest'а
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("postgres: marshal details: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_events (id, ts, event_type, subject_id, details, previous_hash, current_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Timestamp, e.EventType, e.SubjectID, details, e.PreviousHash, e.CurrentHash)
	if err != nil {
		return fmt.Errorf("postgres: append audit event: %w", err)
	}
	return nil
}

// LatestHash возвращает хвост цепочки — current_hash последней
// закоммиченной записи, либо genesis-сентинел для пустого журнала.
func (r *AuditRepo) LatestHash(ctx context.Context) (string, error) {
	var h string
	err := r.pool.QueryRow(ctx,
		`SELECT current_hash FROM audit_events ORDER BY seq DESC LIMIT 1`).Scan(&h)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chain.GenesisHash, nil
		}
		return "", fmt.Errorf("postgres: fetch chain tail: %w", err)
	}
	return h, nil
}

// RangeByTime — выборка по времени с опциональным фильтром типа.
// Опциональность решается параметром ($3 = '' означает «без фильтра»),
// текст запроса всегда один и тот же.
func (r *AuditRepo) RangeByTime(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ts, event_type, subject_id, details, previous_hash, current_hash
		FROM audit_events
		WHERE ts BETWEEN $1 AND $2
		  AND ($3 = '' OR event_type = $3)
		ORDER BY ts ASC, seq ASC`,
		f.Start, f.End, f.EventType)
	if err != nil {
		return nil, fmt.Errorf("postgres: query audit range: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RangeByChain возвращает непрерывный участок в порядке цепочки (по seq).
// Границы задаются id событий; неизвестный id дает пустой результат —
// отсутствие данных не является повреждением.
func (r *AuditRepo) RangeByChain(ctx context.Context, startID, endID string) ([]domain.AuditEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, ts, event_type, subject_id, details, previous_hash, current_hash
		FROM audit_events
		WHERE seq BETWEEN
			(SELECT seq FROM audit_events WHERE id = $1)
			AND
			(SELECT seq FROM audit_events WHERE id = $2)
		ORDER BY seq ASC`,
		startID, endID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query chain range: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]domain.AuditEvent, error) {
	// Пустой слайс, чтобы наружу уходил [], а не null
	events := make([]domain.AuditEvent, 0)
	for rows.Next() {
		var e domain.AuditEvent
		var details []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.SubjectID, &details, &e.PreviousHash, &e.CurrentHash); err != nil {
			return nil, fmt.Errorf("postgres: scan audit event: %w", err)
		}
		// jsonb не хранит исходный порядок ключей, поэтому сырой текст
		// из БД для digest'а бесполезен: декодируем в значение, каноничную
		// форму пересчитает chain
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal details for %s: %w", e.ID, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate audit events: %w", err)
	}
	return events, nil
}
