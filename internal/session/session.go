// Package session holds the state scoped to one visit: the order each shard
// is shown in so a list does not reorder mid-visit, and the per-tab stash that hands a
// selected record to the detail view without a refetch.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourorg/listing-api/shard"
)

type Session struct {
	ID string

	mu       sync.Mutex
	orders   map[string]Order
	stash    map[string]shard.PropertyRecord
	values   map[string]any
	lastSeen time.Time
}

func New(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		ID:       id,
		orders:   make(map[string]Order),
		stash:    make(map[string]shard.PropertyRecord),
		values:   make(map[string]any),
		lastSeen: time.Now(),
	}
}

// Order is the permutation a session applies to one stored shard: Perm[i]
// is the stored index of the record shown at position i.
type Order struct {
	Perm []int
	At   time.Time
}

// ShuffleMarker reports when key was last shuffled in this session.
func (s *Session) ShuffleMarker(key string) (time.Time, bool) {
	o, ok := s.Order(key)
	return o.At, ok
}

// Order returns the permutation this session uses for key.
func (s *Session) Order(key string) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[key]
	return o, ok
}

// MarkShuffled records the permutation chosen for key. perm is owned by the
// session afterwards.
func (s *Session) MarkShuffled(key string, perm []int, at time.Time) {
	s.mu.Lock()
	s.orders[key] = Order{Perm: perm, At: at}
	s.mu.Unlock()
}

// Stash keeps the record selected under id for the detail view.
func (s *Session) Stash(id string, rec shard.PropertyRecord) {
	s.mu.Lock()
	s.stash[id] = rec
	s.mu.Unlock()
}

func (s *Session) Lookup(id string) (shard.PropertyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.stash[id]
	return rec, ok
}

// ClearStash drops the transient records, as on navigating away.
func (s *Session) ClearStash() {
	s.mu.Lock()
	s.stash = make(map[string]shard.PropertyRecord)
	s.mu.Unlock()
}

// Value returns the value attached under name, attaching init() first if
// there is none. init runs with the session locked and must not call back in.
func (s *Session) Value(name string, init func() any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	if !ok && init != nil {
		v = init()
		s.values[name] = v
	}
	return v
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Registry hands out sessions by id and forgets idle ones.
type Registry struct {
	idle time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(idle time.Duration) *Registry {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Registry{idle: idle, now: time.Now, sessions: make(map[string]*Session)}
}

// Get returns the live session for id, creating it when missing or expired.
// An empty id always yields a fresh session.
func (r *Registry) Get(id string) *Session {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && id != "" {
		if now.Sub(s.idleSince()) <= r.idle {
			s.touch(now)
			return s
		}
	}
	s := New(id)
	s.touch(now)
	r.sessions[s.ID] = s
	return s
}

// Sweep drops sessions idle longer than the registry's window.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if now.Sub(s.idleSince()) > r.idle {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
