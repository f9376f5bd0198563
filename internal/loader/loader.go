// Package loader obtains shard record collections: local cache first, then
// the network, transforming and writing back on a miss. Each session sees
// the stored records in its own order.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yourorg/listing-api/internal/cache"
	"github.com/yourorg/listing-api/internal/events"
	"github.com/yourorg/listing-api/internal/metrics"
	"github.com/yourorg/listing-api/internal/order"
	"github.com/yourorg/listing-api/internal/session"
	"github.com/yourorg/listing-api/shard"
)

// DefaultDomain tags cache keys written by this service.
const DefaultDomain = "props"

var (
	// ErrShardLoad matches every *LoadError.
	ErrShardLoad = errors.New("shard load failed")
	// ErrNoShard means the catalog has no shard for the pair.
	ErrNoShard = errors.New("no shard for category and location")
)

// LoadError reports a failed fetch or parse of one shard. It is distinct
// from an empty shard, which loads successfully with zero records.
type LoadError struct {
	Ref shard.Ref
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load shard %s: %v", e.Ref, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }
func (e *LoadError) Is(target error) bool { return target == ErrShardLoad }

type Options struct {
	Domain     string
	Cache      cache.Store // nil runs network-only
	Randomizer *order.Randomizer
	Publisher  events.Publisher
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

type Loader struct {
	catalog *shard.Catalog
	fetcher shard.Fetcher
	cache   cache.Store
	order   *order.Randomizer
	pub     events.Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	domain  string
	now     func() time.Time

	group singleflight.Group
}

func New(catalog *shard.Catalog, fetcher shard.Fetcher, opts Options) *Loader {
	l := &Loader{
		catalog: catalog,
		fetcher: fetcher,
		cache:   opts.Cache,
		order:   opts.Randomizer,
		pub:     opts.Publisher,
		metrics: opts.Metrics,
		log:     opts.Logger,
		domain:  opts.Domain,
		now:     time.Now,
	}
	if l.order == nil {
		l.order = order.New(catalog.AlwaysRandomize)
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	if l.domain == "" {
		l.domain = DefaultDomain
	}
	return l
}

func (l *Loader) Catalog() *shard.Catalog { return l.catalog }

func (l *Loader) Key(cat shard.Category, location string) cache.Key {
	return cache.Key{Domain: l.domain, Location: location, Category: cat}
}

// Load returns the records of the (category, location) shard in the order
// sess sees them. The stored shard is shared and never reordered.
func (l *Loader) Load(ctx context.Context, sess *session.Session, cat shard.Category, location string) ([]shard.PropertyRecord, error) {
	stored, err := l.Stored(ctx, cat, location)
	if err != nil {
		return nil, err
	}
	key := l.Key(cat, location).String()
	out, shuffled := l.order.Shuffle(sess, stored, key, location)
	if shuffled {
		l.log.Debug("new session order", zap.String("cache_key", key))
	}
	return out, nil
}

// Stored returns the shard in its stored order, the order ordinals refer to,
// fetching and caching it on a miss. Callers must not modify the slice.
func (l *Loader) Stored(ctx context.Context, cat shard.Category, location string) ([]shard.PropertyRecord, error) {
	ref, ok := l.catalog.Ref(cat, location)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoShard, cat, location)
	}
	key := l.Key(cat, location)
	log := l.log.With(zap.String("cache_key", key.String()))

	if recs, ok := l.fromCache(ctx, key, log); ok {
		return recs, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	recs, err := l.fetch(ctx, ref)
	if err != nil {
		l.metrics.ShardLoad("error")
		log.Warn("shard load failed", zap.Error(err))
		return nil, err
	}
	l.metrics.ShardLoad("network")
	l.write(ctx, key, cache.Entry{Records: recs, StoredAt: l.now()}, log)
	log.Info("shard loaded from network", zap.Int("records", len(recs)))
	return recs, nil
}

// fromCache serves a non-empty cached entry. Read failures fall through to
// the network.
func (l *Loader) fromCache(ctx context.Context, key cache.Key, log *zap.Logger) ([]shard.PropertyRecord, bool) {
	if l.cache == nil {
		return nil, false
	}
	e, err := l.cache.Get(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrMiss):
		return nil, false
	default:
		if ctx.Err() == nil {
			l.metrics.CacheError("get")
			log.Warn("shard cache read failed, using network", zap.Error(err))
		}
		return nil, false
	}
	if len(e.Records) == 0 {
		return nil, false
	}
	l.metrics.ShardLoad("cache")
	return e.Records, true
}

func (l *Loader) write(ctx context.Context, key cache.Key, e cache.Entry, log *zap.Logger) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Put(ctx, key, e); err != nil {
		l.metrics.CacheError("put")
		log.Warn("shard cache write failed", zap.Error(err))
	}
}

// fetch coalesces concurrent network loads of the same shard. The shared
// call is detached from any single caller's cancellation.
func (l *Loader) fetch(ctx context.Context, ref shard.Ref) ([]shard.PropertyRecord, error) {
	ch := l.group.DoChan(ref.String(), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		body, err := l.fetcher.Fetch(fctx, ref)
		if err != nil {
			return nil, &LoadError{Ref: ref, Err: err}
		}
		loc, _ := l.catalog.Location(ref.Location)
		recs, err := shard.Transform(body, ref.Category, loc)
		if err != nil {
			return nil, &LoadError{Ref: ref, Err: err}
		}
		if l.pub != nil {
			ids := make([]string, 0, len(recs))
			for _, r := range recs {
				ids = append(ids, r.NativeID)
			}
			l.pub.PublishShardLoaded(fctx, events.ShardLoaded{Category: ref.Category, Location: ref.Location, NativeIDs: ids})
		}
		return recs, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]shard.PropertyRecord), nil
	}
}

// Invalidate evicts one shard from the cache.
func (l *Loader) Invalidate(ctx context.Context, cat shard.Category, location string) error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Delete(ctx, l.Key(cat, location))
}

// Clear evicts every shard this loader's domain has cached.
func (l *Loader) Clear(ctx context.Context) error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Clear(ctx, l.domain)
}
