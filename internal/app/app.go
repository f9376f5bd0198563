// Package app assembles the service's components from configuration. The
// HTTP server, the warmer and listingctl all build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/yourorg/listing-api/internal/cache"
	"github.com/yourorg/listing-api/internal/canon"
	"github.com/yourorg/listing-api/internal/env"
	"github.com/yourorg/listing-api/internal/events"
	"github.com/yourorg/listing-api/internal/favorites"
	"github.com/yourorg/listing-api/internal/loader"
	"github.com/yourorg/listing-api/internal/metrics"
	"github.com/yourorg/listing-api/internal/redisx"
	"github.com/yourorg/listing-api/internal/refresh"
	"github.com/yourorg/listing-api/internal/resolver"
	"github.com/yourorg/listing-api/internal/search"
	"github.com/yourorg/listing-api/internal/session"
	"github.com/yourorg/listing-api/internal/sqlitex"
	"github.com/yourorg/listing-api/internal/store"
	"github.com/yourorg/listing-api/shard"
)

type App struct {
	Config    env.Config
	Log       *zap.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Catalog   *shard.Catalog
	Fetcher   shard.Fetcher
	Cache     cache.Store
	Publisher events.Publisher
	Indexer   *search.Indexer
	Loader    *loader.Loader
	Locations *canon.LocationResolver
	Store     *store.Store // nil without PG_DSN
	Resolver  *resolver.Resolver
	Sessions  *session.Registry
	Favorites *favorites.Store
	Refresher *refresh.Refresher

	closers []func() error
}

// Options trims what Build wires for tools that need less than the server.
type Options struct {
	SkipFavorites bool
	SkipRefresher bool
}

func Build(ctx context.Context, cfg env.Config, log *zap.Logger, opts Options) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Log: log, Catalog: shard.DefaultCatalog()}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	f, err := shard.NewFetcher(ctx, cfg.ShardBaseURL, shard.FetcherOptions{RPS: cfg.FetchRPS, AWSRegion: cfg.AWSRegion, Logger: log})
	if err != nil {
		return nil, err
	}
	a.Fetcher = f

	var db *sql.DB
	sqliteDB := func() (*sql.DB, error) {
		if db != nil {
			return db, nil
		}
		d, err := sqlitex.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		db = d
		a.closers = append(a.closers, d.Close)
		return d, nil
	}

	switch cfg.CacheBackend {
	case env.BackendMemory:
		a.Cache = cache.NewMemoryStore()
	case env.BackendRedis:
		rc := redisx.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		a.closers = append(a.closers, rc.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			// the loader falls back to the network on every cache error
			log.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		a.Cache = cache.NewRedisStore(rc, cfg.CacheTTL)
	case env.BackendSQLite:
		d, err := sqliteDB()
		if err != nil {
			return nil, err
		}
		if a.Cache, err = cache.NewSQLiteStore(ctx, d); err != nil {
			return nil, err
		}
	case env.BackendNone:
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}

	a.Publisher = events.NewInMemory(256)
	a.Indexer = search.NewIndexer(a.Publisher, log.Named("index"))
	a.Loader = loader.New(a.Catalog, a.Fetcher, loader.Options{
		Cache:     a.Cache,
		Publisher: a.Publisher,
		Metrics:   a.Metrics,
		Logger:    log.Named("loader"),
	})
	a.Locations = canon.NewLocationResolver(a.Catalog)

	resolverOpts := resolver.Options{
		Index:     a.Indexer,
		Locations: a.Locations,
		Metrics:   a.Metrics,
		Logger:    log.Named("resolver"),
	}
	if cfg.PostgresDSN != "" {
		st, err := store.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open record store: %w", err)
		}
		a.closers = append(a.closers, st.Close)
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = st.Ping(pingCtx)
		if err == nil {
			err = st.Migrate(pingCtx)
		}
		cancel()
		if err != nil {
			return nil, fmt.Errorf("record store: %w", err)
		}
		a.Store = st
		// set only here so the resolver never sees a typed nil
		resolverOpts.Store = st
	}
	a.Resolver = resolver.New(a.Loader, resolverOpts)
	a.Sessions = session.NewRegistry(cfg.SessionIdle)

	if !opts.SkipFavorites {
		d, err := sqliteDB()
		if err != nil {
			return nil, err
		}
		if a.Favorites, err = favorites.New(ctx, d); err != nil {
			return nil, err
		}
	}

	if !opts.SkipRefresher {
		a.Refresher = refresh.New(cfg.RefreshQueue, 2, log.Named("refresh"), func(ctx context.Context, j refresh.Job) error {
			_, err := a.Loader.Stored(ctx, j.Category, j.Location)
			return err
		})
		a.closers = append(a.closers, func() error { a.Refresher.Close(); return nil })
	}

	ok = true
	return a, nil
}

// Run drives the background work until ctx ends: the key indexer and the
// idle-session sweep.
func (a *App) Run(ctx context.Context) {
	go a.Indexer.Run(ctx)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.Sessions.Sweep(); n > 0 {
				a.Log.Debug("expired idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = errors.Join(errs, a.closers[i]())
	}
	a.closers = nil
	return errs
}
