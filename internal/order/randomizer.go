package order

import (
	"math/rand"
	"sync"
	"time"

	"github.com/yourorg/listing-api/internal/session"
	"github.com/yourorg/listing-api/shard"
)

// Randomizer decides the order a session sees a stored shard in: one
// permutation per key per session, or a new one on every load for
// always-randomize locations. Stored records are never reordered.
type Randomizer struct {
	always func(location string) bool

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// New builds a randomizer; always reports the high-traffic allow-list.
func New(always func(location string) bool) *Randomizer {
	return NewWithSource(always, rand.NewSource(time.Now().UnixNano()))
}

func NewWithSource(always func(location string) bool, src rand.Source) *Randomizer {
	if always == nil {
		always = func(string) bool { return false }
	}
	return &Randomizer{always: always, rng: rand.New(src), now: time.Now}
}

// Shuffle returns stored in the session's order for key, and whether a new
// permutation was drawn. A session keeps its permutation until the location
// is always-randomize or the stored shard changes size. A nil session gets a
// fresh permutation that is not remembered. stored is never modified.
func (r *Randomizer) Shuffle(sess *session.Session, stored []shard.PropertyRecord, key, location string) ([]shard.PropertyRecord, bool) {
	if sess != nil && !r.always(location) {
		if o, seen := sess.Order(key); seen && len(o.Perm) == len(stored) {
			return apply(stored, o.Perm), false
		}
	}
	perm := r.permutation(len(stored))
	if sess != nil {
		sess.MarkShuffled(key, perm, r.now())
	}
	return apply(stored, perm), true
}

// permutation is Fisher–Yates over the identity: for i from the last index
// down to 1, swap i with a uniform index in [0, i].
func (r *Randomizer) permutation(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := n - 1; i > 0; i-- {
		j := r.rng.Intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

func apply(stored []shard.PropertyRecord, perm []int) []shard.PropertyRecord {
	if stored == nil {
		return nil
	}
	out := make([]shard.PropertyRecord, len(perm))
	for i, src := range perm {
		out[i] = stored[src]
	}
	return out
}
