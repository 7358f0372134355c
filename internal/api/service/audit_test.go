package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xela07ax/auditchain-platform/internal/chain"
	"github.com/xela07ax/auditchain-platform/internal/domain"
	"go.uber.org/zap"
)

// fakeRepo отдает заранее построенные события; ошибки — по флагу.
type fakeRepo struct {
	events []domain.AuditEvent
	fail   bool
}

func (r *fakeRepo) RangeByTime(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEvent, error) {
	if r.fail {
		return nil, errors.New("storage unavailable")
	}
	out := make([]domain.AuditEvent, 0)
	for _, e := range r.events {
		if e.Timestamp.Before(f.Start) || e.Timestamp.After(f.End) {
			continue
		}
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *fakeRepo) RangeByChain(ctx context.Context, startID, endID string) ([]domain.AuditEvent, error) {
	if r.fail {
		return nil, errors.New("storage unavailable")
	}
	start, end := -1, -1
	for i, e := range r.events {
		if e.ID == startID {
			start = i
		}
		if e.ID == endID {
			end = i
		}
	}
	if start == -1 || end == -1 || start > end {
		return []domain.AuditEvent{}, nil
	}
	return r.events[start : end+1], nil
}

// buildChain строит корректную цепочку из n событий.
func buildChain(n int) []domain.AuditEvent {
	base := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	events := make([]domain.AuditEvent, 0, n)
	prev := chain.GenesisHash
	types := []string{"user.login", "user.logout", "consent.granted"}
	for i := 0; i < n; i++ {
		e := domain.AuditEvent{
			ID:           string(rune('a'+i)) + "-id",
			Timestamp:    base.Add(time.Duration(i) * time.Second),
			EventType:    types[i%len(types)],
			SubjectID:    "u-1",
			Details:      map[string]interface{}{"seq": float64(i)},
			PreviousHash: prev,
		}
		e.CurrentHash = chain.Digest(e.ID, e.Timestamp, e.EventType, e.SubjectID, e.Details, prev)
		prev = e.CurrentHash
		events = append(events, e)
	}
	return events
}

func newService(repo AuditLogProvider) *AuditService {
	return NewAuditService(repo, zap.NewNop(), nil)
}

func TestVerifyValidChain(t *testing.T) {
	repo := &fakeRepo{events: buildChain(3)}
	s := newService(repo)

	res, err := s.Verify(context.Background(), "a-id", "c-id")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid chain, got %+v", res)
	}
}

func TestVerifySingleAndEmptyRange(t *testing.T) {
	repo := &fakeRepo{events: buildChain(1)}
	s := newService(repo)

	res, err := s.Verify(context.Background(), "a-id", "a-id")
	if err != nil {
		t.Fatalf("verify single: %v", err)
	}
	if !res.Valid {
		t.Fatalf("single valid event must verify, got %+v", res)
	}

	// Неизвестные id — пустой диапазон, отсутствие данных не есть порча
	res, err = s.Verify(context.Background(), "nope-1", "nope-2")
	if err != nil {
		t.Fatalf("verify empty: %v", err)
	}
	if !res.Valid {
		t.Fatalf("empty range must be valid, got %+v", res)
	}
}

func TestVerifyDetectsTamperedDetails(t *testing.T) {
	events := buildChain(3)
	// Правим payload первой записи напрямую, мимо Ingestor
	events[0].Details = map[string]interface{}{"seq": float64(999)}
	s := newService(&fakeRepo{events: events})

	res, err := s.Verify(context.Background(), "a-id", "c-id")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Valid {
		t.Fatal("tampered details must invalidate the chain")
	}
	if res.At != "a-id" || res.Reason != domain.ReasonDigestMismatch {
		t.Fatalf("expected DigestMismatch at a-id, got %+v", res)
	}
}

func TestVerifyDetectsTamperedLink(t *testing.T) {
	events := buildChain(3)
	// Перешиваем previous_hash последней записи
	events[2].PreviousHash = chain.GenesisHash
	s := newService(&fakeRepo{events: events})

	res, err := s.Verify(context.Background(), "a-id", "c-id")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Valid {
		t.Fatal("broken link must invalidate the chain")
	}
	if res.At != "c-id" || res.Reason != domain.ReasonLinkageMismatch {
		t.Fatalf("expected LinkageMismatch at c-id, got %+v", res)
	}
}

func TestVerifyChecksDigestOfLastElement(t *testing.T) {
	events := buildChain(2)
	// Портим только хеш хвоста: связность пары не страдает
	events[1].CurrentHash = chain.GenesisHash
	s := newService(&fakeRepo{events: events})

	res, err := s.Verify(context.Background(), "a-id", "b-id")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Valid {
		t.Fatal("tampered tail digest must be detected")
	}
	if res.At != "b-id" || res.Reason != domain.ReasonDigestMismatch {
		t.Fatalf("expected DigestMismatch at b-id, got %+v", res)
	}
}

func TestQueryFiltersAndIsIdempotent(t *testing.T) {
	events := buildChain(3)
	s := newService(&fakeRepo{events: events})
	f := domain.AuditFilter{
		Start:     events[0].Timestamp,
		End:       events[2].Timestamp,
		EventType: "user.login",
	}

	first, err := s.Query(context.Background(), f)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	second, err := s.Query(context.Background(), f)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(first) != 1 || first[0].EventType != "user.login" {
		t.Fatalf("unexpected filter result: %+v", first)
	}
	if len(first) != len(second) || first[0].CurrentHash != second[0].CurrentHash {
		t.Fatalf("same query must return same results")
	}

	// Фильтр, который ничего не матчит — пустой слайс, не ошибка
	none, err := s.Query(context.Background(), domain.AuditFilter{
		Start:     f.Start,
		End:       f.End,
		EventType: "no.such.type",
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty result, got %d events", len(none))
	}
}

func TestVerifySurfacesStorageError(t *testing.T) {
	s := newService(&fakeRepo{fail: true})
	if _, err := s.Verify(context.Background(), "a", "b"); err == nil {
		t.Fatal("storage error must propagate")
	}
	if _, err := s.Query(context.Background(), domain.AuditFilter{}); err == nil {
		t.Fatal("storage error must propagate")
	}
}
