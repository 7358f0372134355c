package ingest

/*
Файл consumer.go — единственный потребитель очереди событий аудита.

Семантика at-least-once поверх Redis Streams:
- XREADGROUP через consumer group, XACK только ПОСЛЕ закоммиченного append.
- Битое сообщение (DecodeError) подтверждаем и дропаем с логом сырого
  payload — ретраем оно валидным не станет.
- Транзиентные ошибки БД ретраим с бэкоффом ограниченное число раз, после
  чего сообщение остается в pending (припарковано для редоставки или ручного
  разбора). Потеря события молча — ровно то, ради чего журнал существует.
- Дубликат id означает, что прошлый append на самом деле закоммитился,
  а ack не дошел: подтверждаем без повторной записи.
- Один запорченный payload не останавливает поток: цикл идет дальше.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/auditchain-platform/internal/infra"
	"go.uber.org/zap"
)

// ErrDecode — маркер недекодируемого сообщения из очереди.
var ErrDecode = errors.New("ingest: undecodable message")

type Consumer struct {
	rdb      *redis.Client
	appender *Appender
	cfg      infra.IngestConfig
	logger   *zap.Logger
	metrics  *Metrics
}

func NewConsumer(rdb *redis.Client, appender *Appender, cfg infra.IngestConfig, logger *zap.Logger, metrics *Metrics) *Consumer {
	return &Consumer{
		rdb:      rdb,
		appender: appender,
		cfg:      cfg,
		logger:   logger.Named("ingest"),
		metrics:  metrics,
	}
}

// Run крутит цикл потребления до отмены контекста.
// Блокирующее ожидание следующего сообщения — норма, не ошибка.
// При отмене даем начатому append завершиться и выходим, не подтвердив
// ничего незакоммиченного.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	c.logger.Info("ingestion loop started",
		zap.String("stream", c.cfg.Stream),
		zap.String("group", c.cfg.Group))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("ingestion loop stopped")
			return ctx.Err()
		default:
		}

		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    1,
			Block:    c.cfg.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Таймаут блокировки, новых сообщений нет
			}
			if ctx.Err() != nil {
				c.logger.Info("ingestion loop stopped")
				return ctx.Err()
			}
			// Живучесть: переждать и переподключиться, а не падать
			c.logger.Error("failed to read from stream", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				c.handle(ctx, msg)
			}
		}
	}
}

// ensureGroup создает consumer group, если ее еще нет.
func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) {
	in, err := DecodeMessage(msg.Values)
	if err != nil {
		// Сырой payload в лог целиком — для офлайн-разбора
		c.logger.Error("dropping undecodable message",
			zap.String("msg_id", msg.ID),
			zap.Any("raw", msg.Values),
			zap.Error(err))
		c.metrics.DroppedTotal.WithLabelValues("decode").Inc()
		c.ack(ctx, msg.ID)
		return
	}

	start := time.Now()
	err = c.appendWithRetry(ctx, in)
	if err != nil {
		if isDuplicate(err) {
			// Прошлый append закоммитился, редоставка после потерянного ack
			c.logger.Warn("duplicate event id, acking without re-append",
				zap.String("event_id", in.ID))
			c.metrics.DroppedTotal.WithLabelValues("duplicate").Inc()
			c.ack(ctx, msg.ID)
			return
		}
		// Паркуем: не подтверждаем, сообщение останется в pending
		c.logger.Error("append failed after retries, message parked",
			zap.String("msg_id", msg.ID),
			zap.String("event_id", in.ID),
			zap.Error(err))
		c.metrics.ParkedTotal.Inc()
		return
	}

	c.metrics.AppendDuration.Observe(time.Since(start).Seconds())
	c.metrics.IngestedTotal.Inc()
	c.ack(ctx, msg.ID)
}

// appendWithRetry — ограниченные ретраи транзиентных ошибок хранилища.
func (c *Consumer) appendWithRetry(ctx context.Context, in InboundEvent) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(uint(c.cfg.MaxRetries)),
		retry.OnRetry(func(n uint, err error) {
			c.metrics.AppendRetries.Inc()
			c.logger.Warn("append retry",
				zap.Uint("attempt", n+1),
				zap.String("event_id", in.ID),
				zap.Error(err))
		}),
	)

	return r.Do(func() error {
		// Таймаут на операцию с БД: висеть единственным потоком записи нельзя.
		// От родительского контекста отвязываемся: shutdown прекращает
		// НОВЫЕ попытки (retry.Context выше), но начатый append обязан
		// доехать до коммита, а не оборваться на полпути
		tCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.StoreTimeout)
		defer cancel()

		_, err := c.appender.Append(tCtx, in)
		if err != nil && isDuplicate(err) {
			return retry.Unrecoverable(err)
		}
		return err
	})
}

func (c *Consumer) ack(ctx context.Context, msgID string) {
	if err := c.rdb.XAck(ctx, c.cfg.Stream, c.cfg.Group, msgID).Err(); err != nil {
		// Не страшно: придет редоставка и отсеется как дубликат
		c.logger.Warn("ack failed", zap.String("msg_id", msgID), zap.Error(err))
	}
}

// DecodeMessage разбирает payload сообщения очереди в кандидата на запись.
func DecodeMessage(values map[string]interface{}) (InboundEvent, error) {
	var in InboundEvent

	raw, ok := values["payload"]
	if !ok {
		return in, ErrDecode
	}
	payload, ok := raw.(string)
	if !ok {
		return in, ErrDecode
	}
	if err := json.Unmarshal([]byte(payload), &in); err != nil {
		return in, errors.Join(ErrDecode, err)
	}
	if in.EventType == "" {
		return in, errors.Join(ErrDecode, errors.New("missing event_type"))
	}
	return in, nil
}

// isDuplicate — нарушение уникальности PK (SQLSTATE 23505).
func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
