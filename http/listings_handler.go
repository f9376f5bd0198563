package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/yourorg/listing-api/internal/browse"
	"github.com/yourorg/listing-api/internal/canon"
	"github.com/yourorg/listing-api/internal/loader"
	"github.com/yourorg/listing-api/internal/refresh"
	"github.com/yourorg/listing-api/internal/session"
	"github.com/yourorg/listing-api/shard"
)

type ListingsLoader interface {
	Load(ctx context.Context, sess *session.Session, cat shard.Category, location string) ([]shard.PropertyRecord, error)
	Invalidate(ctx context.Context, cat shard.Category, location string) error
	Clear(ctx context.Context) error
	Catalog() *shard.Catalog
}

type Enqueuer interface {
	Enqueue(j refresh.Job) bool
}

type ListingsDeps struct {
	Loader    ListingsLoader
	Locations *canon.LocationResolver
	Sessions  Sessions
	Refresh   Enqueuer // optional
	Logger    *zap.Logger
}

type listingsResponse struct {
	Location string         `json:"location"`
	Category shard.Category `json:"category"`
	Count    int            `json:"count"`
	Items    []browse.Item  `json:"items"`
}

func RegisterListings(r chi.Router, d ListingsDeps) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r.Get("/v1/listings", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if q.Get("location") == "" {
			Error(w, req, http.StatusBadRequest, "location_required", "location is required", nil)
			return
		}
		key, err := d.Locations.Resolve(q.Get("location"))
		if err != nil {
			writeLocationError(w, req, err)
			return
		}
		cat := shard.Sale
		if v := q.Get("category"); v != "" {
			c, ok := shard.ParseCategory(v)
			if !ok {
				Error(w, req, http.StatusBadRequest, "invalid_category", "category must be sale or lease", nil)
				return
			}
			cat = c
		}

		sess := d.Sessions.From(w, req)
		st, err := View(sess, d.Loader).Load(req.Context(), cat, key)
		if err != nil {
			writeLoadError(w, req, err)
			return
		}

		// the other category for this location is the likely next view
		if d.Refresh != nil {
			if _, ok := d.Loader.Catalog().Ref(cat.Sibling(), key); ok {
				d.Refresh.Enqueue(refresh.Job{Category: cat.Sibling(), Location: key})
			}
		}
		render.JSON(w, req, listingsResponse{Location: key, Category: cat, Count: len(st.Items), Items: st.Items})
	})

	r.Delete("/v1/listings/cache", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		ctx := req.Context()
		if q.Get("location") == "" {
			if err := d.Loader.Clear(ctx); err != nil {
				d.Logger.Warn("cache clear failed", zap.Error(err))
				Error(w, req, http.StatusServiceUnavailable, "cache_unavailable", err.Error(), nil)
				return
			}
			render.JSON(w, req, map[string]any{"ok": true, "cleared": "all"})
			return
		}
		key, err := d.Locations.Resolve(q.Get("location"))
		if err != nil {
			writeLocationError(w, req, err)
			return
		}
		cats := shard.Categories
		if v := q.Get("category"); v != "" {
			c, ok := shard.ParseCategory(v)
			if !ok {
				Error(w, req, http.StatusBadRequest, "invalid_category", "category must be sale or lease", nil)
				return
			}
			cats = []shard.Category{c}
		}
		for _, c := range cats {
			if err := d.Loader.Invalidate(ctx, c, key); err != nil {
				d.Logger.Warn("cache invalidate failed", zap.String("location", key), zap.Error(err))
				Error(w, req, http.StatusServiceUnavailable, "cache_unavailable", err.Error(), nil)
				return
			}
		}
		render.JSON(w, req, map[string]any{"ok": true, "cleared": key, "categories": cats})
	})
}

func writeLoadError(w http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.Is(err, browse.ErrStale):
		Error(w, req, http.StatusConflict, "superseded", "a newer list request replaced this one", nil)
	case errors.Is(err, loader.ErrNoShard):
		Error(w, req, http.StatusNotFound, "no_shard", err.Error(), nil)
	case errors.Is(err, loader.ErrShardLoad):
		Error(w, req, http.StatusBadGateway, "shard_load_failed", err.Error(), map[string]any{"retry": true})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		Error(w, req, http.StatusServiceUnavailable, "canceled", err.Error(), map[string]any{"retry": true})
	default:
		Error(w, req, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}
