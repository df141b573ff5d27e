package session

import (
	"sync"
	"time"
)

// ExpireAfter is the idle duration after which the sweep in Expire removes
// a session: 24 hours, per the lifecycle contract.
const ExpireAfter = 24 * time.Hour

// Registry is the process-wide map from internal session id to live
// Session. All operations are safe for concurrent use from any number of
// goroutines, including those running on OS threads dedicated to blocking
// inference work.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Insert creates or replaces the entry for s.ID.
func (r *Registry) Insert(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Get returns a Snapshot of the session for id, or false if none exists.
func (r *Registry) Get(id int64) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	return s.snapshot(), true
}

// Mutate applies fn to the live session for id under exclusive access and
// advances its UpdatedAt timestamp. Returns false if no session exists for
// id, in which case fn is not called.
func (r *Registry) Mutate(id int64, fn func(*Session)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	fn(s)
	s.UpdatedAt = time.Now()
	return true
}

// FindByExternalID returns the internal id of the first session whose
// ExternalID matches eid.
func (r *Registry) FindByExternalID(eid string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, s := range r.sessions {
		if s.ExternalID == eid {
			return id, true
		}
	}
	return 0, false
}

// Remove drops the entry for id, if present.
func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// List returns a snapshot of every live session, ordered by CreatedAt
// ascending.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.snapshot())
	}
	sortByCreatedAt(out)
	return out
}

// Expire removes every session whose UpdatedAt is older than ExpireAfter
// and returns the number removed.
func (r *Registry) Expire() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, s := range r.sessions {
		if now.Sub(s.UpdatedAt) > ExpireAfter {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

func sortByCreatedAt(snaps []Snapshot) {
	// Small N (live concurrent sessions); insertion sort keeps this
	// allocation-free and avoids pulling in sort for a handful of items.
	for i := 1; i < len(snaps); i++ {
		for j := i; j > 0 && snaps[j].CreatedAt.Before(snaps[j-1].CreatedAt); j-- {
			snaps[j], snaps[j-1] = snaps[j-1], snaps[j]
		}
	}
}
