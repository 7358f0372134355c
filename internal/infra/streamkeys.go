package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "auditchain"
)

// Redis Streams (очереди). Единственный путь записи в цепочку — StreamAuditEvents.
const (
	// StreamAuditEvents — входящая очередь событий аудита. Продюсеры делают XADD,
	// Ingestor вычитывает через consumer group и подтверждает XACK только после
	// закоммиченного append.
	StreamAuditEvents = RedisNamespace + ":audit_events"

	// StreamNotifications — очередь уведомлений (downstream, к цепочке не относится).
	StreamNotifications = RedisNamespace + ":notifications"
)
