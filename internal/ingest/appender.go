package ingest

/*
Файл appender.go — единственная точка продления хеш-цепочки.

«Прочитать хвост → посчитать digest → записать» — это read-modify-write
критическая секция над общим состоянием (ChainTail). Исходная схема из двух
отдельных вызовов к БД без сериализации гонится: два события могут прочитать
один хвост и оба объявить его своим previous_hash. Поэтому секция закрыта
мьютексом, а все продюсеры обязаны ходить через один экземпляр Appender.
Consumer и так однопоточный, мьютекс страхует от второго вызова из будущего
кода.
*/

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/auditchain-platform/internal/chain"
	"github.com/xela07ax/auditchain-platform/internal/domain"
)

// Store — минимальный контракт персистентности для писателя цепочки.
type Store interface {
	// LatestHash возвращает хвост цепочки (genesis-сентинел для пустого журнала)
	LatestHash(ctx context.Context) (string, error)
	// Append атомарно пишет одну запись с заполненными полями цепочки
	Append(ctx context.Context, e *domain.AuditEvent) error
}

// InboundEvent — событие из очереди до присвоения полей цепочки.
// Details — любое JSON-значение (объект, массив, скаляр, null).
type InboundEvent struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType string      `json:"event_type"`
	SubjectID string      `json:"subject_id"`
	Details   interface{} `json:"details"`
}

type Appender struct {
	store Store
	mu    sync.Mutex // Сериализация продления цепочки
}

func NewAppender(store Store) *Appender {
	return &Appender{store: store}
}

// Append присваивает событию хвост цепочки и durable-записывает его.
// Под мьютексом держим и чтение хвоста, и вставку: между ними никто
// не должен успеть продлить цепочку.
func (a *Appender) Append(ctx context.Context, in InboundEvent) (*domain.AuditEvent, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	prev, err := a.store.LatestHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest: read chain tail: %w", err)
	}

	e := &domain.AuditEvent{
		ID:           in.ID,
		Timestamp:    in.Timestamp,
		EventType:    in.EventType,
		SubjectID:    in.SubjectID,
		Details:      in.Details,
		PreviousHash: prev,
		CurrentHash:  chain.Digest(in.ID, in.Timestamp, in.EventType, in.SubjectID, in.Details, prev),
	}

	if err := a.store.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("ingest: append: %w", err)
	}
	return e, nil
}
