package service

/*
Файл audit.go — read-side журнала: выборка по времени и проверка целостности.

Verifier пересчитывает каждый digest и сверяет связность соседей. Он только
читает: нашел расхождение — отчитался и остановился (bounded-cost: на большом
диапазоне ответ про первую точку порчи приходит быстро). Чинить цепочку
некому и нечем — это принципиально.
*/

import (
	"context"
	"fmt"

	"github.com/xela07ax/auditchain-platform/internal/chain"
	"github.com/xela07ax/auditchain-platform/internal/domain"
	"github.com/xela07ax/auditchain-platform/internal/ingest"
	"go.uber.org/zap"
)

// AuditLogProvider описывает контракт чтения журнала.
type AuditLogProvider interface {
	RangeByTime(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEvent, error)
	RangeByChain(ctx context.Context, startID, endID string) ([]domain.AuditEvent, error)
}

type AuditService struct {
	repo    AuditLogProvider
	logger  *zap.Logger
	metrics *ingest.Metrics
}

func NewAuditService(repo AuditLogProvider, logger *zap.Logger, metrics *ingest.Metrics) *AuditService {
	if metrics == nil {
		metrics = ingest.NewMetrics(nil)
	}
	return &AuditService{
		repo:    repo,
		logger:  logger.Named("audit-service"),
		metrics: metrics,
	}
}

// Query — чистое фильтрованное чтение, никакой работы с цепочкой.
// Пустой результат — это пустой слайс, не ошибка.
func (s *AuditService) Query(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEvent, error) {
	events, err := s.repo.RangeByTime(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("audit_service: query failed: %w", err)
	}
	return events, nil
}

// Verify проверяет непрерывный участок цепочки между двумя id.
// Для каждой пары соседей (A, B): сначала digest A (I2), затем связность
// B.previous_hash == A.current_hash (I1). Последний элемент проверяется
// на I2 отдельно — иначе порча хвоста осталась бы незамеченной.
// Пустой или одноэлементный диапазон: связность вакуумно верна.
func (s *AuditService) Verify(ctx context.Context, startID, endID string) (domain.VerifyResult, error) {
	events, err := s.repo.RangeByChain(ctx, startID, endID)
	if err != nil {
		return domain.VerifyResult{}, fmt.Errorf("audit_service: verify fetch failed: %w", err)
	}

	res := s.walk(events)
	verdict := "valid"
	if !res.Valid {
		verdict = "invalid"
		s.logger.Warn("chain verification failed",
			zap.String("start_id", startID),
			zap.String("end_id", endID),
			zap.String("at", res.At),
			zap.String("reason", res.Reason))
	}
	s.metrics.VerifyTotal.WithLabelValues(verdict).Inc()
	return res, nil
}

func (s *AuditService) walk(events []domain.AuditEvent) domain.VerifyResult {
	if len(events) == 0 {
		return domain.VerifyResult{Valid: true}
	}

	for i := 0; i < len(events)-1; i++ {
		a, b := &events[i], &events[i+1]
		if !digestValid(a) {
			return domain.VerifyResult{At: a.ID, Reason: domain.ReasonDigestMismatch}
		}
		if b.PreviousHash != a.CurrentHash {
			return domain.VerifyResult{At: b.ID, Reason: domain.ReasonLinkageMismatch}
		}
	}

	if last := &events[len(events)-1]; !digestValid(last) {
		return domain.VerifyResult{At: last.ID, Reason: domain.ReasonDigestMismatch}
	}
	return domain.VerifyResult{Valid: true}
}

func digestValid(e *domain.AuditEvent) bool {
	return chain.Digest(e.ID, e.Timestamp, e.EventType, e.SubjectID, e.Details, e.PreviousHash) == e.CurrentHash
}
