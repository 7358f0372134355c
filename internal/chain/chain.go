package chain

/*
Пакет chain — чистая математика хеш-цепочки аудита.

Никакого I/O и состояния: детерминированная функция digest по каноничной
форме события. Канонизация details выполняется ЗДЕСЬ и только здесь —
encoding/json сортирует ключи map на всех уровнях вложенности, поэтому два
семантически одинаковых payload'а всегда дают одинаковый хеш. Details —
любое JSON-значение, не только объект. Это требование корректности:
независимая переверификация обязана воспроизводить digest байт в байт.
*/

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// GenesisHash — сентинел previous_hash для самой первой записи журнала.
var GenesisHash = strings.Repeat("0", 64)

// Digest считает lowercase-hex SHA-256 по каноничной форме события.
// Временная метка фиксируется в UTC RFC3339Nano: один и тот же момент
// в разных зонах обязан давать один и тот же хеш.
func Digest(id string, ts time.Time, eventType, subjectID string, details interface{}, previousHash string) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		id,
		ts.UTC().Format(time.RFC3339Nano),
		eventType,
		subjectID,
		CanonicalDetails(details),
		previousHash,
	)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// CanonicalDetails приводит payload к стабильной текстовой форме.
// Payload — произвольное JSON-значение: объект, массив, строка, число,
// bool или null. Отсутствующие details и явный null неразличимы — "null".
func CanonicalDetails(details interface{}) string {
	// Ошибка маршалинга невозможна для значений, прошедших json.Unmarshal.
	// Для рукотворных значений с несериализуемыми типами честно падать
	// нельзя — подставляем null, расхождение поймает Verifier.
	b, err := json.Marshal(details)
	if err != nil {
		return "null"
	}
	return string(b)
}
