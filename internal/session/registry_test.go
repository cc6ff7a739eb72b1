package session

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
)

func newTestRegistry() *Registry {
	return NewRegistry(Logger.New(true))
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	r := newTestRegistry()
	if _, err := r.Create("call-1", TransportTelephony); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := r.Create("call-1", TransportTelephony); err == nil {
		t.Fatal("duplicate create must fail")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 session, got %d", r.Len())
	}
}

func TestSequenceStartsAtOneAndHasNoGaps(t *testing.T) {
	r := newTestRegistry()
	s, _ := r.Create("call-1", TransportTelephony)

	if first := s.NextSequence(); first != 1 {
		t.Fatalf("first sequence = %d, want 1", first)
	}

	const goroutines, perGoroutine = 8, 100
	seen := make([]uint64, 0, goroutines*perGoroutine)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				n := s.NextSequence()
				mu.Lock()
				seen = append(seen, n)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	for i, n := range seen {
		if n != uint64(i)+2 { // 1 was consumed above
			t.Fatalf("sequence gap or repeat at index %d: got %d", i, n)
		}
	}
}

func TestRemoveCancelsInFlightWork(t *testing.T) {
	r := newTestRegistry()
	s, _ := r.Create("call-1", TransportTelephony)

	ctx, cancel := context.WithCancel(context.Background())
	s.SetCancel(cancel)

	r.Remove("call-1")

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("remove did not cancel in-flight context")
	}
	if _, ok := r.Get("call-1"); ok {
		t.Error("session still resolvable after remove")
	}
}

func TestAudioBufferTakeAndClear(t *testing.T) {
	r := newTestRegistry()
	s, _ := r.Create("s-1", TransportRawPCM)

	s.AppendAudio([]byte{1, 2})
	s.AppendAudio([]byte{3, 4})
	if got := s.TakeAudio(); len(got) != 4 {
		t.Errorf("take returned %d bytes, want 4", len(got))
	}
	if got := s.TakeAudio(); got != nil {
		t.Errorf("buffer not cleared by take: %v", got)
	}

	s.AppendAudio([]byte{5})
	s.ClearAudio()
	if got := s.TakeAudio(); got != nil {
		t.Errorf("buffer not cleared by clear: %v", got)
	}
}

func TestJanitorEvictsIdleSessions(t *testing.T) {
	r := newTestRegistry()
	idle, _ := r.Create("idle", TransportTelephony)
	fresh, _ := r.Create("fresh", TransportTelephony)

	idle.mu.Lock()
	idle.lastSeen = time.Now().Add(-time.Hour)
	idle.mu.Unlock()
	fresh.Touch()

	var evicted []string
	r.evictIdle(5*time.Minute, func(s *Session) {
		evicted = append(evicted, s.ID)
	})

	if len(evicted) != 1 || evicted[0] != "idle" {
		t.Fatalf("expected only idle session evicted, got %v", evicted)
	}
	if _, ok := r.Get("fresh"); !ok {
		t.Error("fresh session must survive janitor pass")
	}
}

func TestDigitHistory(t *testing.T) {
	r := newTestRegistry()
	s, _ := r.Create("call-1", TransportTelephony)

	s.AddDigit("1", "inbound")
	s.AddDigit("#", "inbound")

	digits := s.Digits()
	if len(digits) != 2 {
		t.Fatalf("expected 2 digits, got %d", len(digits))
	}
	if digits[0].Digit != "1" || digits[1].Digit != "#" {
		t.Errorf("digit order wrong: %+v", digits)
	}
}
