package order

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/listing-api/internal/session"
	"github.com/yourorg/listing-api/shard"
)

func records(n int) []shard.PropertyRecord {
	out := make([]shard.PropertyRecord, n)
	for i := range out {
		out[i] = shard.PropertyRecord{Key: fmt.Sprintf("k%02d", i)}
	}
	return out
}

func keys(recs []shard.PropertyRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Key
	}
	return out
}

func TestShuffleIsPermutation(t *testing.T) {
	r := NewWithSource(nil, rand.NewSource(1))
	in := records(25)
	for trial := 0; trial < 50; trial++ {
		out, shuffled := r.Shuffle(session.New(""), in, "k", "austin")
		require.True(t, shuffled)
		got := keys(out)
		sort.Strings(got)
		assert.Equal(t, keys(in), got)
	}
	assert.Equal(t, "k00", in[0].Key, "input is not modified")
}

func TestShuffleRarelyIdentity(t *testing.T) {
	r := NewWithSource(nil, rand.NewSource(99))
	in := records(2)
	unchanged := 0
	const trials = 2000
	for i := 0; i < trials; i++ {
		out, _ := r.Shuffle(session.New(""), in, "k", "austin")
		if out[0].Key == "k00" {
			unchanged++
		}
	}
	// For N=2 identity has probability 1/2.
	assert.InDelta(t, 0.5, float64(unchanged)/trials, 0.06)
}

func TestShuffleOncePerSession(t *testing.T) {
	r := NewWithSource(nil, rand.NewSource(3))
	sess := session.New("s1")
	in := records(10)

	first, shuffled := r.Shuffle(sess, in, "props:austin:sale", "austin")
	require.True(t, shuffled)
	_, ok := sess.ShuffleMarker("props:austin:sale")
	assert.True(t, ok)

	second, shuffled := r.Shuffle(sess, in, "props:austin:sale", "austin")
	assert.False(t, shuffled)
	assert.Equal(t, keys(first), keys(second))

	_, shuffled = r.Shuffle(sess, in, "props:austin:lease", "austin")
	assert.True(t, shuffled, "markers are per key")

	_, shuffled = r.Shuffle(sess, records(11), "props:austin:sale", "austin")
	assert.True(t, shuffled, "a resized shard gets a new order")
}

func TestShuffleSessionsDoNotInterfere(t *testing.T) {
	r := NewWithSource(nil, rand.NewSource(8))
	in := records(20)
	alice, bob := session.New("alice"), session.New("bob")

	first, _ := r.Shuffle(alice, in, "props:austin:sale", "austin")
	for i := 0; i < 5; i++ {
		r.Shuffle(bob, in, "props:austin:sale", "austin")
		r.Shuffle(nil, in, "props:austin:sale", "austin")
	}
	again, shuffled := r.Shuffle(alice, in, "props:austin:sale", "austin")
	assert.False(t, shuffled)
	assert.Equal(t, keys(first), keys(again))
	assert.Equal(t, keys(records(20)), keys(in), "stored order is untouched")
}

func TestShuffleAlwaysRandomize(t *testing.T) {
	always := func(loc string) bool { return loc == "miami" }
	r := NewWithSource(always, rand.NewSource(5))
	sess := session.New("s1")
	in := records(10)

	for i := 0; i < 3; i++ {
		_, shuffled := r.Shuffle(sess, in, "props:miami:sale", "miami")
		assert.True(t, shuffled)
	}
}

func TestShuffleEmptyAndSingle(t *testing.T) {
	r := New(nil)
	out, _ := r.Shuffle(nil, nil, "k", "x")
	assert.Empty(t, out)
	out, _ = r.Shuffle(nil, records(1), "k", "x")
	assert.Equal(t, []string{"k00"}, keys(out))
}
