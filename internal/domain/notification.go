package domain

import "time"

// NotificationEvent — сообщение из очереди notifications.
// Downstream-потребитель журнала не касается: цепочка аудита живет отдельно.
type NotificationEvent struct {
	UserID  string `json:"user_id"`
	Type    string `json:"notification_type"` // Тема письма / заголовок пуша
	Content string `json:"content"`
}

// NotificationPreferences — каналы доставки, разрешенные пользователем.
type NotificationPreferences struct {
	UserID       string `json:"user_id"`
	EmailEnabled bool   `json:"email_enabled"`
	SMSEnabled   bool   `json:"sms_enabled"`
	PushEnabled  bool   `json:"push_enabled"`
	Email        string `json:"email"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	PushToken    string `json:"push_token,omitempty"`
}

type NotificationStatus string

const (
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationRetried NotificationStatus = "retried"
)

// NotificationRecord — строка истории доставки (notification_history).
type NotificationRecord struct {
	ID        int64              `json:"id"`
	UserID    string             `json:"user_id"`
	Type      string             `json:"notification_type"`
	Channel   string             `json:"channel"` // email | sms | push
	Content   string             `json:"content"`
	Status    NotificationStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}
