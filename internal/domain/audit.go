package domain

import "time"

// Причины невалидности цепочки, которые возвращает Verifier.
// Контракт API: {valid: false, at: <id>, reason: <одна из констант>}
const (
	ReasonDigestMismatch  = "DigestMismatch"  // current_hash не совпал с пересчитанным
	ReasonLinkageMismatch = "LinkageMismatch" // previous_hash не указывает на соседа
)

// AuditEvent — одна запись tamper-evident журнала.
// После записи в хранилище событие неизменяемо: любое расхождение
// обнаруживается только Verifier'ом и никогда не «чинится».
type AuditEvent struct {
	ID        string      `json:"id"`         // UUID события (присваивает продюсер)
	Timestamp time.Time   `json:"timestamp"`  // Время события (UTC)
	EventType string      `json:"event_type"` // Категория ("user.login", "consent.granted"...)
	SubjectID string      `json:"subject_id"` // Кого касается (пустая строка для системных)
	Details   interface{} `json:"details"`    // Произвольное JSON-значение, для цепочки — opaque

	// Поля цепочки. Считает ТОЛЬКО Ingestor, на входе из очереди их нет.
	PreviousHash string `json:"previous_hash"` // Хеш предыдущей записи или genesis-сентинел
	CurrentHash  string `json:"current_hash"`  // SHA-256 по каноничной форме всех полей выше
}

// AuditFilter — явный объект фильтрации для запросов по времени.
// Никакой динамической конкатенации SQL: опциональность поля EventType
// разруливается в репозитории параметром запроса.
type AuditFilter struct {
	Start     time.Time // Начало диапазона (включительно)
	End       time.Time // Конец диапазона (включительно)
	EventType string    // Пустая строка = без фильтра по типу
}

// VerifyResult — вердикт проверки непрерывного участка цепочки.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	At     string `json:"at,omitempty"`     // ID события, на котором нашли расхождение
	Reason string `json:"reason,omitempty"` // ReasonDigestMismatch | ReasonLinkageMismatch
}
