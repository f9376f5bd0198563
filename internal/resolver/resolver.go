// Package resolver materializes the record addressed by a property
// identifier, trying the cheapest source first:
//
//  1. the session's transient stash,
//  2. a reload of the hinted shard indexed at the hinted ordinal,
//  3. a scan of every known shard for the native or positional key,
//  4. the durable record store.
//
// Tiers 2 and 3 are best-effort. A failing tier hands over to the next one;
// only exhaustion is reported, as ErrRecordNotFound.
package resolver

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/listing-api/internal/idcodec"
	"github.com/yourorg/listing-api/internal/metrics"
	"github.com/yourorg/listing-api/internal/session"
	"github.com/yourorg/listing-api/shard"
)

var ErrRecordNotFound = errors.New("record not found")

type Tier string

const (
	TierTransient Tier = "transient"
	TierHinted    Tier = "hinted"
	TierScan      Tier = "scan"
	TierStore     Tier = "store"
)

// ShardLoader serves shards in their stored order, the order id ordinals
// index into. Resolving never draws or applies a session order.
type ShardLoader interface {
	Stored(ctx context.Context, cat shard.Category, location string) ([]shard.PropertyRecord, error)
	Catalog() *shard.Catalog
}

// RecordStore is the durable backend for administrator-entered records.
type RecordStore interface {
	FetchByNativeKey(ctx context.Context, key string) (shard.PropertyRecord, error)
	FetchByID(ctx context.Context, id string) (shard.PropertyRecord, error)
}

// KeyIndex remembers which shard a native id was last seen in.
type KeyIndex interface {
	Lookup(nativeID string) (shard.Ref, bool)
}

// LocationResolver canonicalizes a free-text location carried by an id.
type LocationResolver interface {
	Resolve(input string) (string, error)
}

type Options struct {
	Store           RecordStore
	Index           KeyIndex
	Locations       LocationResolver
	Metrics         *metrics.Metrics
	Logger          *zap.Logger
	ScanConcurrency int
}

// Request names the record to resolve. NativeKey is optional and usually
// comes from the "key" parameter of a shared link.
type Request struct {
	ID        string
	NativeKey string
}

type Result struct {
	Record shard.PropertyRecord
	Tier   Tier
}

type Resolver struct {
	loader    ShardLoader
	store     RecordStore
	index     KeyIndex
	locations LocationResolver
	metrics   *metrics.Metrics
	log       *zap.Logger
	scanLimit int
}

func New(loader ShardLoader, opts Options) *Resolver {
	r := &Resolver{
		loader:    loader,
		store:     opts.Store,
		index:     opts.Index,
		locations: opts.Locations,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		scanLimit: opts.ScanConcurrency,
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.scanLimit <= 0 {
		r.scanLimit = 4
	}
	return r
}

func (r *Resolver) Resolve(ctx context.Context, sess *session.Session, req Request) (Result, error) {
	if req.ID == "" && req.NativeKey == "" {
		return Result{}, ErrRecordNotFound
	}
	log := r.log.With(zap.String("id", req.ID), zap.String("native_key", req.NativeKey))

	if sess != nil && req.ID != "" {
		if rec, ok := sess.Lookup(req.ID); ok {
			r.observe(log, TierTransient, true)
			return Result{Record: rec, Tier: TierTransient}, nil
		}
		r.observe(log, TierTransient, false)
	}

	if pid, ok := idcodec.DecodeDurable(req.ID); ok && r.store != nil {
		rec, err := r.store.FetchByID(ctx, pid)
		if err == nil {
			r.observe(log, TierStore, true)
			return Result{Record: rec, Tier: TierStore}, nil
		}
		r.observe(log, TierStore, false)
		log.Debug("durable id lookup failed", zap.Error(err))
	}

	hint, decodeErr := idcodec.Decode(req.ID)
	candidates := nativeCandidates(req, decodeErr)

	if decodeErr == nil {
		if rec, ok := r.hinted(ctx, hint, req.NativeKey, log); ok {
			r.observe(log, TierHinted, true)
			return r.authoritative(ctx, rec, TierHinted, log), nil
		}
		r.observe(log, TierHinted, false)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	for _, key := range candidates {
		if rec, ok := r.scan(ctx, key); ok {
			r.observe(log, TierScan, true)
			return r.authoritative(ctx, rec, TierScan, log), nil
		}
	}
	if len(candidates) > 0 {
		r.observe(log, TierScan, false)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if r.store != nil {
		for _, key := range candidates {
			rec, err := r.store.FetchByNativeKey(ctx, key)
			if err == nil {
				r.observe(log, TierStore, true)
				return Result{Record: rec, Tier: TierStore}, nil
			}
			log.Debug("store lookup failed", zap.String("key", key), zap.Error(err))
		}
		if len(candidates) > 0 {
			r.observe(log, TierStore, false)
		}
	}
	return Result{}, ErrRecordNotFound
}

// nativeCandidates lists the native keys worth scanning for: the explicit
// key, and the raw id itself when it is not a well-formed shard id.
func nativeCandidates(req Request, decodeErr error) []string {
	var out []string
	if req.NativeKey != "" {
		out = append(out, req.NativeKey)
	}
	if decodeErr != nil && req.ID != "" && req.ID != req.NativeKey {
		if _, durable := idcodec.DecodeDurable(req.ID); !durable {
			out = append(out, req.ID)
		}
	}
	return out
}

// hinted reloads the hinted shard and indexes its stored order. When the
// caller also knows the native key, a record at the ordinal with a different
// key is a miss.
func (r *Resolver) hinted(ctx context.Context, hint idcodec.Hint, nativeKey string, log *zap.Logger) (shard.PropertyRecord, bool) {
	location := hint.Location
	if _, ok := r.loader.Catalog().Location(location); !ok && r.locations != nil {
		resolved, err := r.locations.Resolve(location)
		if err != nil {
			log.Debug("hinted location unknown", zap.String("location", location))
			return shard.PropertyRecord{}, false
		}
		location = resolved
	}
	recs, err := r.loader.Stored(ctx, hint.Category, location)
	if err != nil {
		log.Debug("hinted reload failed", zap.Error(err))
		return shard.PropertyRecord{}, false
	}
	if hint.Ordinal >= len(recs) {
		log.Debug("hinted ordinal out of range", zap.Int("ordinal", hint.Ordinal), zap.Int("records", len(recs)))
		return shard.PropertyRecord{}, false
	}
	rec := recs[hint.Ordinal]
	if nativeKey != "" && !matches(rec, nativeKey) {
		log.Debug("hinted ordinal points at a different record", zap.String("found", rec.NativeID))
		return shard.PropertyRecord{}, false
	}
	return rec, true
}

// scan looks for key in every catalog shard, starting with the shard the
// index last saw it in, and stops at the first match.
func (r *Resolver) scan(ctx context.Context, key string) (shard.PropertyRecord, bool) {
	refs := r.loader.Catalog().Refs()
	if r.index != nil {
		if hot, ok := r.index.Lookup(key); ok {
			if rec, ok := r.findIn(ctx, hot, key); ok {
				return rec, true
			}
			refs = without(refs, hot)
		}
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(scanCtx)
	g.SetLimit(r.scanLimit)

	var (
		once  sync.Once
		found shard.PropertyRecord
		hit   bool
	)
	for _, ref := range refs {
		ref := ref
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec, ok := r.findIn(gctx, ref, key)
			if ok {
				once.Do(func() {
					found, hit = rec, true
					cancel()
				})
			}
			return nil
		})
	}
	_ = g.Wait()
	return found, hit
}

func (r *Resolver) findIn(ctx context.Context, ref shard.Ref, key string) (shard.PropertyRecord, bool) {
	recs, err := r.loader.Stored(ctx, ref.Category, ref.Location)
	if err != nil {
		return shard.PropertyRecord{}, false
	}
	for _, rec := range recs {
		if matches(rec, key) {
			return rec, true
		}
	}
	return shard.PropertyRecord{}, false
}

// matches reports whether key names rec, by native id or, for records
// without one, by positional key.
func matches(rec shard.PropertyRecord, key string) bool {
	if rec.NativeID != "" {
		return rec.NativeID == key
	}
	return rec.Key == key
}

func without(refs []shard.Ref, drop shard.Ref) []shard.Ref {
	out := refs[:0:0]
	for _, ref := range refs {
		if ref.Category == drop.Category && ref.Location == drop.Location {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// authoritative prefers the durable store's copy of a shard hit: when both
// hold the same native key, the store wins.
func (r *Resolver) authoritative(ctx context.Context, rec shard.PropertyRecord, tier Tier, log *zap.Logger) Result {
	if r.store == nil || rec.NativeID == "" {
		return Result{Record: rec, Tier: tier}
	}
	durable, err := r.store.FetchByNativeKey(ctx, rec.NativeID)
	if err != nil {
		return Result{Record: rec, Tier: tier}
	}
	log.Debug("durable record overrides shard record", zap.String("tier", string(tier)))
	return Result{Record: durable, Tier: TierStore}
}

func (r *Resolver) observe(log *zap.Logger, tier Tier, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.metrics.ResolveTier(string(tier), outcome)
	log.Debug("resolve tier", zap.String("tier", string(tier)), zap.String("outcome", outcome))
}
