package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xela07ax/auditchain-platform/internal/chain"
	"github.com/xela07ax/auditchain-platform/internal/domain"
)

// memStore — in-memory реализация Store для тестов писателя.
type memStore struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	failN  int // Сколько ближайших Append уронить
}

func (s *memStore) LatestHash(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return chain.GenesisHash, nil
	}
	return s.events[len(s.events)-1].CurrentHash, nil
}

func (s *memStore) Append(ctx context.Context, e *domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return errors.New("storage unavailable")
	}
	for _, ex := range s.events {
		if ex.ID == e.ID {
			return errors.New("duplicate id")
		}
	}
	s.events = append(s.events, *e)
	return nil
}

func TestAppendBootstrapsFromGenesis(t *testing.T) {
	store := &memStore{}
	a := NewAppender(store)

	e, err := a.Append(context.Background(), InboundEvent{
		ID:        "e0a35a5c-9f3e-4b59-8f27-1f0c86f7a001",
		Timestamp: time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC),
		EventType: "user.login",
		SubjectID: "u-1",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if e.PreviousHash != chain.GenesisHash {
		t.Fatalf("first event must link to genesis sentinel, got %s", e.PreviousHash)
	}
	want := chain.Digest(e.ID, e.Timestamp, e.EventType, e.SubjectID, e.Details, chain.GenesisHash)
	if e.CurrentHash != want {
		t.Fatalf("current_hash mismatch: got %s want %s", e.CurrentHash, want)
	}
}

func TestAppendChainsEvents(t *testing.T) {
	store := &memStore{}
	a := NewAppender(store)
	ctx := context.Background()
	base := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)

	first, err := a.Append(ctx, InboundEvent{EventType: "user.login", SubjectID: "u-1", Timestamp: base})
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	second, err := a.Append(ctx, InboundEvent{EventType: "user.logout", SubjectID: "u-1", Timestamp: base.Add(time.Second)})
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if second.PreviousHash != first.CurrentHash {
		t.Fatalf("expected chain link, got prev=%s want=%s", second.PreviousHash, first.CurrentHash)
	}
}

func TestAppendFillsMissingIDAndTimestamp(t *testing.T) {
	store := &memStore{}
	a := NewAppender(store)

	e, err := a.Append(context.Background(), InboundEvent{EventType: "system.start"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if e.ID == "" {
		t.Fatal("ingestor must assign an id when the producer did not")
	}
	if e.Timestamp.IsZero() {
		t.Fatal("ingestor must assign a timestamp when the producer did not")
	}
}

// Под конкурентными продюсерами никакие два события не могут объявить
// один и тот же previous_hash.
func TestAppendSingleWriterUnderLoad(t *testing.T) {
	store := &memStore{}
	a := NewAppender(store)
	ctx := context.Background()

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.Append(ctx, InboundEvent{
				EventType: "load.test",
				Details:   map[string]interface{}{"n": fmt.Sprintf("%d", i)},
			})
			if err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]string, n)
	for _, e := range store.events {
		if prev, ok := seen[e.PreviousHash]; ok {
			t.Fatalf("events %s and %s claim the same previous_hash %s", prev, e.ID, e.PreviousHash)
		}
		seen[e.PreviousHash] = e.ID
	}

	// И вся цепочка при этом связна
	for i := 1; i < len(store.events); i++ {
		if store.events[i].PreviousHash != store.events[i-1].CurrentHash {
			t.Fatalf("broken link at position %d", i)
		}
	}
}
