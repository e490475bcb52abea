package authz

import (
	"slices"
	"sync"
	"time"
)

// Roster records the holders admitted through a successful presentation.
type Roster struct {
	mu      sync.RWMutex
	members map[string]time.Time
}

func NewRoster() *Roster {
	return &Roster{members: make(map[string]time.Time)}
}

// Admit marks holder as admitted. Re-admission refreshes the timestamp.
func (r *Roster) Admit(holder string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[holder] = time.Now().UTC()
}

// Admitted reports whether holder was admitted and when.
func (r *Roster) Admitted(holder string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	at, ok := r.members[holder]
	return at, ok
}

// Members returns the admitted DIDs in lexical order.
func (r *Roster) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.members))
	for holder := range r.members {
		out = append(out, holder)
	}
	slices.Sort(out)

	return out
}

func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.members)
}
