package session

import (
	"sync"
	"testing"
	"time"
)

func TestRegistry_InsertGet(t *testing.T) {
	r := NewRegistry()
	s := New(1, "ext-1", "en", 16000)
	r.Insert(s)

	snap, ok := r.Get(1)
	if !ok {
		t.Fatalf("expected session 1 to exist")
	}
	if snap.ExternalID != "ext-1" {
		t.Fatalf("got external id %q want ext-1", snap.ExternalID)
	}
	if !snap.Valid {
		t.Fatalf("expected new session to be valid")
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get(42); ok {
		t.Fatalf("expected no session for unknown id")
	}
}

func TestRegistry_Mutate(t *testing.T) {
	r := NewRegistry()
	r.Insert(New(1, "ext-1", "en", 16000))

	ok := r.Mutate(1, func(s *Session) {
		s.Seq++
		s.Buffer = append(s.Buffer, 0.1, 0.2)
	})
	if !ok {
		t.Fatalf("expected mutate to find session 1")
	}

	snap, _ := r.Get(1)
	if snap.Seq != 1 {
		t.Fatalf("got seq %d want 1", snap.Seq)
	}
}

func TestRegistry_MutateMissing(t *testing.T) {
	r := NewRegistry()
	ok := r.Mutate(99, func(s *Session) {})
	if ok {
		t.Fatalf("expected mutate on missing id to return false")
	}
}

func TestRegistry_FindByExternalID(t *testing.T) {
	r := NewRegistry()
	r.Insert(New(1, "aaa", "en", 16000))
	r.Insert(New(2, "bbb", "en", 16000))

	id, ok := r.FindByExternalID("bbb")
	if !ok || id != 2 {
		t.Fatalf("got id=%d ok=%v want id=2 ok=true", id, ok)
	}

	if _, ok := r.FindByExternalID("zzz"); ok {
		t.Fatalf("expected no match for unknown external id")
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.Insert(New(1, "ext-1", "en", 16000))
	r.Remove(1)
	if _, ok := r.Get(1); ok {
		t.Fatalf("expected session 1 to be gone after Remove")
	}
}

func TestRegistry_ListOrderedByCreatedAt(t *testing.T) {
	r := NewRegistry()
	first := New(1, "first", "en", 16000)
	first.CreatedAt = time.Now().Add(-2 * time.Hour)
	second := New(2, "second", "en", 16000)
	second.CreatedAt = time.Now().Add(-1 * time.Hour)
	third := New(3, "third", "en", 16000)
	third.CreatedAt = time.Now()

	// Insert out of order.
	r.Insert(second)
	r.Insert(third)
	r.Insert(first)

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("got %d sessions, want 3", len(list))
	}
	wantOrder := []string{"first", "second", "third"}
	for i, w := range wantOrder {
		if list[i].ExternalID != w {
			t.Fatalf("position %d: got %q want %q", i, list[i].ExternalID, w)
		}
	}
}

func TestRegistry_Expire(t *testing.T) {
	r := NewRegistry()
	stale := New(1, "stale", "en", 16000)
	stale.UpdatedAt = time.Now().Add(-25 * time.Hour)
	fresh := New(2, "fresh", "en", 16000)

	r.Insert(stale)
	r.Insert(fresh)

	removed := r.Expire()
	if removed != 1 {
		t.Fatalf("got removed=%d want 1", removed)
	}
	if _, ok := r.Get(1); ok {
		t.Fatalf("expected stale session to be expired")
	}
	if _, ok := r.Get(2); !ok {
		t.Fatalf("expected fresh session to survive expiry")
	}
}

func TestRegistry_ConcurrentMutate(t *testing.T) {
	r := NewRegistry()
	r.Insert(New(1, "ext-1", "en", 16000))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Mutate(1, func(s *Session) { s.Seq++ })
		}()
	}
	wg.Wait()

	snap, _ := r.Get(1)
	if snap.Seq != 100 {
		t.Fatalf("got seq %d want 100 after concurrent mutation", snap.Seq)
	}
}
