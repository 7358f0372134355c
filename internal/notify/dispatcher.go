package notify

/*
Файл dispatcher.go — downstream-потребитель очереди уведомлений.

К цепочке аудита отношения не имеет: читает свой стрим, раскладывает
сообщение по каналам из настроек пользователя и ведет историю доставки.
Надежность внешних шлюзов — через предохранитель и лимитер: один лежащий
SMTP не должен ни захлестнуть нас ретраями, ни стать бесконечной очередью.
Неудачные доставки добираются периодическим ретраем по notification_history.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/auditchain-platform/internal/domain"
	"github.com/xela07ax/auditchain-platform/internal/infra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HistoryStore — настройки каналов + история доставки.
type HistoryStore interface {
	GetPreferences(ctx context.Context, userID string) (*domain.NotificationPreferences, error)
	RecordDelivery(ctx context.Context, rec *domain.NotificationRecord) error
	RecentFailed(ctx context.Context) ([]domain.NotificationRecord, error)
	MarkRetried(ctx context.Context, id int64) error
}

type Dispatcher struct {
	rdb    *redis.Client
	repo   HistoryStore
	email  Sender
	sms    Sender
	push   Sender
	cfg    infra.NotifyConfig
	logger *zap.Logger

	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewDispatcher(rdb *redis.Client, repo HistoryStore, email, sms, push Sender, cfg infra.NotifyConfig, logger *zap.Logger) *Dispatcher {
	// Настройка предохранителя: после серии отказов шлюзов перестаем долбить
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notification-gateways",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 10
	}

	return &Dispatcher{
		rdb:     rdb,
		repo:    repo,
		email:   email,
		sms:     sms,
		push:    push,
		cfg:     cfg,
		logger:  logger.Named("notify"),
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
	}
}

// Run — цикл потребления стрима уведомлений до отмены контекста.
func (d *Dispatcher) Run(ctx context.Context) error {
	err := d.rdb.XGroupCreateMkStream(ctx, infra.StreamNotifications, "notify_group", "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	d.logger.Info("notification dispatcher started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := d.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    "notify_group",
			Consumer: "dispatcher-1",
			Streams:  []string{infra.StreamNotifications, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("failed to read notifications stream", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				d.handle(ctx, msg)
			}
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg redis.XMessage) {
	// Подтверждаем в любом исходе: неудачные доставки лежат в истории
	// со статусом failed и добираются периодическим ретраем.
	defer func() {
		if err := d.rdb.XAck(ctx, infra.StreamNotifications, "notify_group", msg.ID).Err(); err != nil {
			d.logger.Warn("ack failed", zap.String("msg_id", msg.ID), zap.Error(err))
		}
	}()

	payload, ok := msg.Values["payload"].(string)
	if !ok {
		d.logger.Error("dropping malformed notification", zap.Any("raw", msg.Values))
		return
	}
	var n domain.NotificationEvent
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		d.logger.Error("dropping undecodable notification", zap.String("raw", payload), zap.Error(err))
		return
	}

	d.Process(ctx, n)
}

// Process раскладывает уведомление по включенным каналам.
func (d *Dispatcher) Process(ctx context.Context, n domain.NotificationEvent) {
	prefs, err := d.repo.GetPreferences(ctx, n.UserID)
	if err != nil {
		d.logger.Error("failed to load preferences", zap.String("user_id", n.UserID), zap.Error(err))
		return
	}
	if prefs == nil {
		d.logger.Debug("no preferences, skipping", zap.String("user_id", n.UserID))
		return
	}

	for _, channel := range []string{"email", "sms", "push"} {
		if sender, target, ok := d.channelTarget(channel, prefs); ok {
			d.deliver(ctx, n, channel, sender, target)
		}
	}
}

// channelTarget выбирает sender и адресата для канала по настройкам.
// ok=false — канал выключен или адрес не заполнен.
func (d *Dispatcher) channelTarget(channel string, p *domain.NotificationPreferences) (Sender, string, bool) {
	switch channel {
	case "email":
		if p.EmailEnabled && p.Email != "" {
			return d.email, p.Email, true
		}
	case "sms":
		if p.SMSEnabled && p.PhoneNumber != "" {
			return d.sms, p.PhoneNumber, true
		}
	case "push":
		if p.PushEnabled && p.PushToken != "" {
			return d.push, p.PushToken, true
		}
	}
	return nil, "", false
}

func (d *Dispatcher) deliver(ctx context.Context, n domain.NotificationEvent, channel string, sender Sender, target string) {
	status := domain.NotificationSent

	if err := d.limiter.Wait(ctx); err != nil {
		status = domain.NotificationFailed
	} else {
		_, err = d.cb.Execute(func() (interface{}, error) {
			return nil, sender.Send(ctx, n, target)
		})
		if err != nil {
			d.logger.Warn("delivery failed",
				zap.String("channel", channel),
				zap.String("user_id", n.UserID),
				zap.Error(err))
			status = domain.NotificationFailed
		}
	}

	rec := &domain.NotificationRecord{
		UserID:  n.UserID,
		Type:    n.Type,
		Channel: channel,
		Content: n.Content,
		Status:  status,
	}
	if err := d.repo.RecordDelivery(ctx, rec); err != nil {
		d.logger.Error("failed to record delivery", zap.Error(err))
	}
}

// RetryLoop периодически перепроигрывает свежие failed-доставки.
func (d *Dispatcher) RetryLoop(ctx context.Context) {
	interval := d.cfg.RetryInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.retryFailed(ctx); err != nil {
				d.logger.Error("retry pass failed", zap.Error(err))
			}
		}
	}
}

// retryFailed перепроигрывает ТОЛЬКО упавший канал каждой записи:
// успешно доставленные каналы того же уведомления повторять нельзя.
func (d *Dispatcher) retryFailed(ctx context.Context) error {
	failed, err := d.repo.RecentFailed(ctx)
	if err != nil {
		return err
	}
	for _, rec := range failed {
		prefs, err := d.repo.GetPreferences(ctx, rec.UserID)
		if err != nil {
			d.logger.Error("failed to load preferences for retry",
				zap.String("user_id", rec.UserID), zap.Error(err))
			continue
		}
		// Канал мог быть выключен после неудачи — тогда просто закрываем запись
		if prefs != nil {
			if sender, target, ok := d.channelTarget(rec.Channel, prefs); ok {
				d.deliver(ctx, domain.NotificationEvent{
					UserID:  rec.UserID,
					Type:    rec.Type,
					Content: rec.Content,
				}, rec.Channel, sender, target)
			}
		}
		if err := d.repo.MarkRetried(ctx, rec.ID); err != nil {
			d.logger.Error("failed to mark retried", zap.Int64("id", rec.ID), zap.Error(err))
		}
	}
	return nil
}
