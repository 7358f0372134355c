package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xela07ax/auditchain-platform/internal/domain"
	"github.com/xela07ax/auditchain-platform/internal/infra"
	"go.uber.org/zap"
)

func TestDecodeMessage(t *testing.T) {
	cases := []struct {
		name    string
		values  map[string]interface{}
		wantErr bool
	}{
		{
			name: "valid payload",
			values: map[string]interface{}{
				"payload": `{"id":"a1","timestamp":"2026-05-02T10:00:00Z","event_type":"user.login","subject_id":"u-1","details":{"ip":"10.0.0.1"}}`,
			},
		},
		{
			name:    "missing payload field",
			values:  map[string]interface{}{"other": "x"},
			wantErr: true,
		},
		{
			name:    "payload is not a string",
			values:  map[string]interface{}{"payload": 42},
			wantErr: true,
		},
		{
			name:    "broken json",
			values:  map[string]interface{}{"payload": `{"id":`},
			wantErr: true,
		},
		{
			name:    "missing event_type",
			values:  map[string]interface{}{"payload": `{"id":"a1"}`},
			wantErr: true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			in, err := DecodeMessage(c.values)
			if c.wantErr {
				if !errors.Is(err, ErrDecode) {
					t.Fatalf("expected ErrDecode, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if in.EventType != "user.login" || in.SubjectID != "u-1" {
				t.Fatalf("unexpected decode result: %+v", in)
			}
		})
	}
}

// Payload не обязан быть JSON-объектом: массив, строка, число и отсутствие
// details — полноценные события, а не DecodeError.
func TestDecodeMessageAcceptsAnyDetailsShape(t *testing.T) {
	for _, payload := range []string{
		`{"event_type":"job.export","details":[1,2,3]}`,
		`{"event_type":"job.export","details":"free text"}`,
		`{"event_type":"job.export","details":7}`,
		`{"event_type":"job.export","details":null}`,
		`{"event_type":"job.export"}`,
	} {
		in, err := DecodeMessage(map[string]interface{}{"payload": payload})
		if err != nil {
			t.Fatalf("payload %s must decode: %v", payload, err)
		}
		if in.EventType != "job.export" {
			t.Fatalf("unexpected decode result for %s: %+v", payload, in)
		}
	}
}

func TestAppendWithRetryRecoversFromTransientFailure(t *testing.T) {
	store := &memStore{failN: 2} // Первые две попытки падают
	c := &Consumer{
		appender: NewAppender(store),
		cfg: infra.IngestConfig{
			MaxRetries:   5,
			StoreTimeout: time.Second,
		},
		logger:  zap.NewNop(),
		metrics: NewMetrics(nil),
	}

	err := c.appendWithRetry(context.Background(), InboundEvent{EventType: "user.login"})
	if err != nil {
		t.Fatalf("expected success after transient failures, got %v", err)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(store.events))
	}
}

func TestAppendWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	store := &memStore{failN: 100} // Падает всегда
	c := &Consumer{
		appender: NewAppender(store),
		cfg: infra.IngestConfig{
			MaxRetries:   3,
			StoreTimeout: time.Second,
		},
		logger:  zap.NewNop(),
		metrics: NewMetrics(nil),
	}

	err := c.appendWithRetry(context.Background(), InboundEvent{EventType: "user.login"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if len(store.events) != 0 {
		t.Fatalf("no event should be stored, got %d", len(store.events))
	}
}

// duplicateStore имитирует нарушение PK: прошлый append уже закоммичен,
// редоставка пришла после потерянного ack.
type duplicateStore struct {
	memStore
	calls int
}

func (s *duplicateStore) Append(ctx context.Context, e *domain.AuditEvent) error {
	s.calls++
	return &pgconn.PgError{Code: "23505"}
}

func TestAppendWithRetryTreatsDuplicateAsCommitted(t *testing.T) {
	store := &duplicateStore{}
	c := &Consumer{
		appender: NewAppender(store),
		cfg: infra.IngestConfig{
			MaxRetries:   5,
			StoreTimeout: time.Second,
		},
		logger:  zap.NewNop(),
		metrics: NewMetrics(nil),
	}

	err := c.appendWithRetry(context.Background(), InboundEvent{ID: "dup-1", EventType: "user.login"})
	if err == nil {
		t.Fatal("duplicate must surface as an error for the caller to classify")
	}
	if !isDuplicate(err) {
		t.Fatalf("error must classify as duplicate through retry wrapping: %v", err)
	}
	// Дубликат неустраним ретраем: ровно одна попытка, без повторной записи
	if store.calls != 1 {
		t.Fatalf("duplicate must not be retried, got %d attempts", store.calls)
	}
}

// cancelingStore гасит внешний контекст прямо во время Append —
// так выглядит shutdown, прилетевший посреди записи.
type cancelingStore struct {
	memStore
	cancel     context.CancelFunc
	attemptErr error
}

func (s *cancelingStore) Append(ctx context.Context, e *domain.AuditEvent) error {
	s.cancel()
	s.attemptErr = ctx.Err()
	return s.memStore.Append(ctx, e)
}

func TestAppendInFlightSurvivesShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancelingStore{cancel: cancel}
	c := &Consumer{
		appender: NewAppender(store),
		cfg: infra.IngestConfig{
			MaxRetries:   3,
			StoreTimeout: time.Second,
		},
		logger:  zap.NewNop(),
		metrics: NewMetrics(nil),
	}

	if err := c.appendWithRetry(ctx, InboundEvent{EventType: "user.login"}); err != nil {
		t.Fatalf("in-flight append must run to commit despite shutdown: %v", err)
	}
	if store.attemptErr != nil {
		t.Fatalf("store context must not inherit cancellation: %v", store.attemptErr)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(store.events))
	}
}
