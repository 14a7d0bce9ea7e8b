package relay

import (
	"sort"
	"sync"
	"time"
)

// Conn is the send side of one client's live transport session
type Conn interface {
	ID() string
	SendJSON(v any) error
}

// Entry is the registry record for one identity
type Entry struct {
	Identity     string
	Conn         Conn
	Location     Location
	RegisteredAt time.Time
}

// Registry maps identities to their current connection and last location.
// Last register wins.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Register inserts or replaces the entry for identity
func (r *Registry) Register(identity string, conn Conn, location Location) Entry {
	e := &Entry{
		Identity:     identity,
		Conn:         conn,
		Location:     cloneLocation(location),
		RegisteredAt: r.now(),
	}

	r.mu.Lock()
	r.entries[identity] = e
	r.mu.Unlock()
	return *e
}

func (r *Registry) Lookup(identity string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[identity]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Remove drops identity whatever connection it is bound to. Absent identities are a no-op.
func (r *Registry) Remove(identity string) {
	r.mu.Lock()
	delete(r.entries, identity)
	r.mu.Unlock()
}

// Release drops identity only while it is still bound to conn, so a stale
// connection closing cannot evict a newer registration of the same identity.
func (r *Registry) Release(identity string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[identity]
	if !ok || !sameConn(e.Conn, conn) {
		return false
	}
	delete(r.entries, identity)
	return true
}

// UpdateLocation replaces the location of identity if it is bound to conn
func (r *Registry) UpdateLocation(identity string, conn Conn, location Location) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[identity]
	if !ok || !sameConn(e.Conn, conn) {
		return false
	}
	updated := *e
	updated.Location = cloneLocation(location)
	r.entries[identity] = &updated
	return true
}

// Snapshot returns every entry ordered by identity
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func sameConn(a, b Conn) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID() == b.ID()
}

func cloneLocation(l Location) Location {
	if l == nil {
		return nil
	}
	out := make(Location, len(l))
	copy(out, l)
	return out
}
