package stream

/*
Файл publisher.go — продюсерская сторона очередей.

Console API не трогает цепочку напрямую и не умеет этого делать:
все его события аудита летят через XADD в тот же стрим, который
вычитывает единственный Ingestor. Формат payload — JSON кандидата
без полей цепочки.
*/

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/auditchain-platform/internal/domain"
	"github.com/xela07ax/auditchain-platform/internal/infra"
	"github.com/xela07ax/auditchain-platform/internal/ingest"
	"go.uber.org/zap"
)

type Publisher struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewPublisher(rdb *redis.Client, logger *zap.Logger) *Publisher {
	return &Publisher{rdb: rdb, logger: logger.Named("publisher")}
}

// Audit ставит событие аудита в очередь Ingestor'а.
// id и таймстемп проставляем здесь: продюсер — источник правды о том,
// КОГДА событие произошло, а не когда его записали.
func (p *Publisher) Audit(ctx context.Context, eventType, subjectID string, details interface{}) error {
	in := ingest.InboundEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SubjectID: subjectID,
		Details:   details,
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("publisher: marshal audit event: %w", err)
	}

	err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: infra.StreamAuditEvents,
		Values: map[string]interface{}{"payload": string(payload)},
	}).Err()
	if err != nil {
		// Сбой доставки в журнал — событие потеряно для цепочки, это критично
		p.logger.Error("audit event publish failed",
			zap.String("event_type", eventType),
			zap.String("subject_id", subjectID),
			zap.Error(err))
		return fmt.Errorf("publisher: xadd audit event: %w", err)
	}
	return nil
}

// Notification ставит уведомление в очередь downstream-потребителя.
func (p *Publisher) Notification(ctx context.Context, n domain.NotificationEvent) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("publisher: marshal notification: %w", err)
	}
	err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: infra.StreamNotifications,
		Values: map[string]interface{}{"payload": string(payload)},
	}).Err()
	if err != nil {
		return fmt.Errorf("publisher: xadd notification: %w", err)
	}
	return nil
}
