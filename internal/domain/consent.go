package domain

import "time"

type ConsentStatus string

const (
	ConsentActive  ConsentStatus = "active"
	ConsentRevoked ConsentStatus = "revoked"
	ConsentExpired ConsentStatus = "expired"
)

// Consent — согласие пользователя на обработку в рамках scope.
// Обычный CRUD: единственный инвариант — «строка существует».
// Каждое изменение статуса порождает событие аудита.
type Consent struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Scope     string        `json:"scope"` // Напр. "marketing.email", "analytics"
	Status    ConsentStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}
