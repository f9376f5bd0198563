package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/listing-api/internal/cache"
	"github.com/yourorg/listing-api/internal/canon"
	"github.com/yourorg/listing-api/internal/idcodec"
	"github.com/yourorg/listing-api/internal/loader"
	"github.com/yourorg/listing-api/internal/order"
	"github.com/yourorg/listing-api/internal/session"
	"github.com/yourorg/listing-api/shard"
)

// mapFetcher serves every catalog shard: listed paths get their body, the
// rest an empty array. Paths in fail return a transport error.
type mapFetcher struct {
	bodies map[string]string
	fail   map[string]bool
	calls  atomic.Int32
}

func (f *mapFetcher) Fetch(_ context.Context, ref shard.Ref) ([]byte, error) {
	f.calls.Add(1)
	if f.fail[ref.Path] {
		return nil, errors.New("unreachable")
	}
	if b, ok := f.bodies[ref.Path]; ok {
		return []byte(b), nil
	}
	return []byte(`[]`), nil
}

func body(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"id":"%s%d","address":{"streetAddress":"%d Main St"},"price":%d}`, prefix, i, i, 1000+i)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

type fakeStore struct {
	byKey map[string]shard.PropertyRecord
	byID  map[string]shard.PropertyRecord
	err   error
}

func (s *fakeStore) FetchByNativeKey(_ context.Context, key string) (shard.PropertyRecord, error) {
	if s.err != nil {
		return shard.PropertyRecord{}, s.err
	}
	if rec, ok := s.byKey[key]; ok {
		return rec, nil
	}
	return shard.PropertyRecord{}, errors.New("not found")
}

func (s *fakeStore) FetchByID(_ context.Context, id string) (shard.PropertyRecord, error) {
	if rec, ok := s.byID[id]; ok {
		return rec, nil
	}
	return shard.PropertyRecord{}, errors.New("not found")
}

type fakeIndex map[string]shard.Ref

func (i fakeIndex) Lookup(id string) (shard.Ref, bool) {
	ref, ok := i[id]
	return ref, ok
}

func setup(t *testing.T, f shard.Fetcher, opts Options) (*Resolver, *loader.Loader) {
	t.Helper()
	cat := shard.DefaultCatalog()
	l := loader.New(cat, f, loader.Options{
		Cache:      cache.NewMemoryStore(),
		Randomizer: order.NewWithSource(cat.AlwaysRandomize, rand.NewSource(21)),
	})
	if opts.Locations == nil {
		opts.Locations = canon.NewLocationResolver(cat)
	}
	return New(l, opts), l
}

func TestResolveTransientTierFirst(t *testing.T) {
	f := &mapFetcher{}
	r, _ := setup(t, f, Options{})
	sess := session.New("tab")
	id := idcodec.Encode(shard.Sale, "austin", 3)
	sess.Stash(id, shard.PropertyRecord{Key: "stashed"})

	res, err := r.Resolve(context.Background(), sess, Request{ID: id})
	require.NoError(t, err)
	assert.Equal(t, TierTransient, res.Tier)
	assert.Equal(t, "stashed", res.Record.Key)
	assert.Zero(t, f.calls.Load(), "transient tier needs no fetch")
}

func TestResolveHintedTier(t *testing.T) {
	f := &mapFetcher{bodies: map[string]string{"sale/austin.json": body("a", 10)}}
	r, l := setup(t, f, Options{})
	sess := session.New("tab")

	recs, err := l.Load(context.Background(), sess, shard.Sale, "austin")
	require.NoError(t, err)

	res, err := r.Resolve(context.Background(), sess, Request{ID: idcodec.Encode(shard.Sale, "austin", recs[4].Ordinal)})
	require.NoError(t, err)
	assert.Equal(t, TierHinted, res.Tier)
	assert.Equal(t, recs[4].NativeID, res.Record.NativeID)
}

func TestResolveHintedTierAcrossSessions(t *testing.T) {
	f := &mapFetcher{bodies: map[string]string{"sale/austin.json": body("a", 10)}}
	r, l := setup(t, f, Options{})

	shown, err := l.Load(context.Background(), session.New("sharer"), shard.Sale, "austin")
	require.NoError(t, err)
	picked := shown[4]

	recipient := session.New("recipient")
	res, err := r.Resolve(context.Background(), recipient, Request{ID: idcodec.Encode(shard.Sale, "austin", picked.Ordinal)})
	require.NoError(t, err)
	assert.Equal(t, TierHinted, res.Tier)
	assert.Equal(t, picked.NativeID, res.Record.NativeID)
	_, marked := recipient.ShuffleMarker(l.Key(shard.Sale, "austin").String())
	assert.False(t, marked, "resolving a link draws no order for the recipient")

	// a cold cache serves the same stored order
	cold, _ := setup(t, f, Options{})
	res, err = cold.Resolve(context.Background(), session.New("other"), Request{ID: idcodec.Encode(shard.Sale, "austin", picked.Ordinal)})
	require.NoError(t, err)
	assert.Equal(t, picked.NativeID, res.Record.NativeID)
}

func TestResolveHintedTierFreeTextLocation(t *testing.T) {
	f := &mapFetcher{bodies: map[string]string{"sale/miami-beach.json": body("mb", 3)}}
	r, l := setup(t, f, Options{})
	sess := session.New("tab")
	recs, err := l.Load(context.Background(), sess, shard.Sale, "miami-beach")
	require.NoError(t, err)

	res, err := r.Resolve(context.Background(), sess, Request{ID: idcodec.Encode(shard.Sale, "Miami Beach, FL", recs[1].Ordinal)})
	require.NoError(t, err)
	assert.Equal(t, TierHinted, res.Tier)
	assert.Equal(t, recs[1].NativeID, res.Record.NativeID)
}

func TestResolveOrdinalOutOfRangeFallsToScan(t *testing.T) {
	f := &mapFetcher{bodies: map[string]string{
		"sale/miami.json":  body("m", 10),
		"lease/tampa.json": body("t", 5),
	}}
	r, _ := setup(t, f, Options{})

	// sale_miami_42 against a 10-record shard, opened cold with a native key.
	res, err := r.Resolve(context.Background(), session.New("cold"), Request{ID: "sale_miami_42", NativeKey: "t3"})
	require.NoError(t, err)
	assert.Equal(t, TierScan, res.Tier)
	assert.Equal(t, "t3", res.Record.NativeID)
	assert.Equal(t, shard.Lease, res.Record.Category)
	assert.Equal(t, "tampa", res.Record.Location)
}

func TestResolveOrdinalOutOfRangeWithoutKeyIsNotFound(t *testing.T) {
	f := &mapFetcher{bodies: map[string]string{"sale/miami.json": body("m", 10)}}
	r, _ := setup(t, f, Options{})

	res, err := r.Resolve(context.Background(), session.New("cold"), Request{ID: "sale_miami_42"})
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.Zero(t, res)
}

func TestResolveStaleHintWithKeyMismatch(t *testing.T) {
	f := &mapFetcher{bodies: map[string]string{"sale/austin.json": body("a", 10)}}
	r, l := setup(t, f, Options{})
	sess := session.New("tab")
	recs, err := l.Stored(context.Background(), shard.Sale, "austin")
	require.NoError(t, err)

	// The id points at ordinal 0 but the link was minted for the record at 7.
	res, err := r.Resolve(context.Background(), sess, Request{ID: idcodec.Encode(shard.Sale, "austin", 0), NativeKey: recs[7].NativeID})
	require.NoError(t, err)
	assert.Equal(t, TierScan, res.Tier)
	assert.Equal(t, recs[7].NativeID, res.Record.NativeID)
}

func TestResolveMalformedIDUsedAsNativeKey(t *testing.T) {
	f := &mapFetcher{bodies: map[string]string{"lease/boston.json": body("zp", 4)}}
	r, _ := setup(t, f, Options{})

	res, err := r.Resolve(context.Background(), session.New(""), Request{ID: "zp2"})
	require.NoError(t, err)
	assert.Equal(t, TierScan, res.Tier)
	assert.Equal(t, "zp2", res.Record.NativeID)
}

func TestResolveScanMatchesPositionalKey(t *testing.T) {
	f := &mapFetcher{bodies: map[string]string{"lease/boston.json": `[{"price":2500},{"price":2700}]`}}
	r, _ := setup(t, f, Options{})
	key := shard.FallbackKey(shard.Lease, "boston", 1)

	res, err := r.Resolve(context.Background(), session.New(""), Request{ID: "sale_miami_42", NativeKey: key})
	require.NoError(t, err)
	assert.Equal(t, TierScan, res.Tier)
	assert.Equal(t, key, res.Record.Key)
	assert.Equal(t, 2700.0, res.Record.Price.Amount)
}

func TestResolveScanUsesIndexFirst(t *testing.T) {
	f := &mapFetcher{bodies: map[string]string{"lease/seattle.json": body("s", 3)}}
	idx := fakeIndex{"s1": {Category: shard.Lease, Location: "seattle"}}
	r, _ := setup(t, f, Options{Index: idx})

	res, err := r.Resolve(context.Background(), session.New(""), Request{ID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "s1", res.Record.NativeID)
	assert.EqualValues(t, 1, f.calls.Load(), "indexed shard is scanned alone when it holds the key")
}

func TestResolveScanSurvivesShardFailures(t *testing.T) {
	f := &mapFetcher{
		bodies: map[string]string{"sale/denver.json": body("d", 2)},
		fail:   map[string]bool{"sale/miami.json": true, "lease/miami.json": true, "sale/austin.json": true},
	}
	r, _ := setup(t, f, Options{ScanConcurrency: 2})

	res, err := r.Resolve(context.Background(), session.New(""), Request{ID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, "d1", res.Record.NativeID)
}

func TestResolveExternalStoreTier(t *testing.T) {
	f := &mapFetcher{}
	durable := shard.PropertyRecord{Key: "admin-1", NativeID: "admin-1", Category: shard.Sale, City: "Miami", Region: "FL", Source: shard.SourceStore}
	st := &fakeStore{byKey: map[string]shard.PropertyRecord{"admin-1": durable}}
	r, _ := setup(t, f, Options{Store: st})

	res, err := r.Resolve(context.Background(), session.New(""), Request{ID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, TierStore, res.Tier)
	assert.Equal(t, durable, res.Record)
}

func TestResolveDurableIdentifier(t *testing.T) {
	f := &mapFetcher{}
	durable := shard.PropertyRecord{Key: "k", NativeID: "k", Source: shard.SourceStore}
	st := &fakeStore{byID: map[string]shard.PropertyRecord{"0b5c": durable}}
	r, _ := setup(t, f, Options{Store: st})

	res, err := r.Resolve(context.Background(), session.New(""), Request{ID: idcodec.EncodeDurable("0b5c")})
	require.NoError(t, err)
	assert.Equal(t, TierStore, res.Tier)
	assert.Zero(t, f.calls.Load(), "durable ids skip shard tiers")
}

// The durable store is authoritative whenever it holds the same native key
// as a static shard record.
func TestResolveExternalStoreWinsOverShard(t *testing.T) {
	f := &mapFetcher{bodies: map[string]string{"sale/austin.json": body("a", 5)}}
	r, l := setup(t, f, Options{})
	sess := session.New("tab")
	recs, err := l.Load(context.Background(), sess, shard.Sale, "austin")
	require.NoError(t, err)
	target := recs[2]

	override := shard.PropertyRecord{Key: target.NativeID, NativeID: target.NativeID, Street: "Corrected address", Category: shard.Sale, City: "Austin", Region: "TX", Source: shard.SourceStore}
	r.store = &fakeStore{byKey: map[string]shard.PropertyRecord{target.NativeID: override}}

	res, err := r.Resolve(context.Background(), sess, Request{ID: idcodec.Encode(shard.Sale, "austin", target.Ordinal)})
	require.NoError(t, err)
	assert.Equal(t, TierStore, res.Tier)
	assert.Equal(t, "Corrected address", res.Record.Street)

	res, err = r.Resolve(context.Background(), sess, Request{ID: "x", NativeKey: target.NativeID})
	require.NoError(t, err)
	assert.Equal(t, "Corrected address", res.Record.Street)

	// a failing store never hides the shard record
	r.store = &fakeStore{err: errors.New("db down")}
	res, err = r.Resolve(context.Background(), sess, Request{ID: idcodec.Encode(shard.Sale, "austin", target.Ordinal)})
	require.NoError(t, err)
	assert.Equal(t, TierHinted, res.Tier)
	assert.Equal(t, target, res.Record)
}

func TestResolveNeverPanicsOnOddInput(t *testing.T) {
	f := &mapFetcher{}
	r, _ := setup(t, f, Options{Store: &fakeStore{}})
	for _, id := range []string{"", "_", "___", "sale_", "lease_atlantis_0", "sale_%zz_1", "rec_", "rec_%"} {
		_, err := r.Resolve(context.Background(), session.New(""), Request{ID: id})
		assert.ErrorIs(t, err, ErrRecordNotFound, id)
	}
}

func TestResolveRespectsCancellation(t *testing.T) {
	r, _ := setup(t, &mapFetcher{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, session.New(""), Request{ID: "sale_austin_1", NativeKey: "nope"})
	assert.ErrorIs(t, err, context.Canceled)
}
