package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/listing-api/internal/favorites"
	"github.com/yourorg/listing-api/internal/resolver"
	"github.com/yourorg/listing-api/internal/session"
	"github.com/yourorg/listing-api/shard"
)

type PropertyResolver interface {
	Resolve(ctx context.Context, sess *session.Session, req resolver.Request) (resolver.Result, error)
}

type FavoritesDeps struct {
	Store    *favorites.Store
	Resolver PropertyResolver
	Sessions Sessions
}

// FavoriteRequest names a property by shareable id and optional native key,
// or carries the record itself.
type FavoriteRequest struct {
	ID     string                `json:"id,omitempty"`
	Key    string                `json:"key,omitempty"`
	Record *shard.PropertyRecord `json:"record,omitempty"`
}

func RegisterFavorites(r chi.Router, d FavoritesDeps) {
	r.Route("/v1/favorites", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			sess := d.Sessions.From(w, req)
			list, err := d.Store.List(req.Context(), sess.ID)
			if err != nil {
				Error(w, req, http.StatusInternalServerError, "favorites_error", err.Error(), nil)
				return
			}
			render.JSON(w, req, map[string]any{"favorites": list})
		})

		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			sess := d.Sessions.From(w, req)
			rec, ok := d.record(w, req, sess)
			if !ok {
				return
			}
			e, err := d.Store.Add(req.Context(), sess.ID, rec, rec.Source)
			if err != nil {
				writeFavoriteError(w, req, err)
				return
			}
			render.Status(req, http.StatusCreated)
			render.JSON(w, req, e)
		})

		r.Post("/toggle", func(w http.ResponseWriter, req *http.Request) {
			sess := d.Sessions.From(w, req)
			rec, ok := d.record(w, req, sess)
			if !ok {
				return
			}
			on, err := d.Store.Toggle(req.Context(), sess.ID, rec, rec.Source)
			if err != nil {
				writeFavoriteError(w, req, err)
				return
			}
			render.JSON(w, req, map[string]any{"favorited": on})
		})

		r.Get("/{key}", func(w http.ResponseWriter, req *http.Request) {
			sess := d.Sessions.From(w, req)
			has, err := d.Store.Has(req.Context(), sess.ID, chi.URLParam(req, "key"))
			if err != nil {
				Error(w, req, http.StatusInternalServerError, "favorites_error", err.Error(), nil)
				return
			}
			render.JSON(w, req, map[string]any{"favorited": has})
		})

		r.Delete("/{key}", func(w http.ResponseWriter, req *http.Request) {
			sess := d.Sessions.From(w, req)
			if err := d.Store.Remove(req.Context(), sess.ID, chi.URLParam(req, "key")); err != nil {
				Error(w, req, http.StatusInternalServerError, "favorites_error", err.Error(), nil)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})
}

// record extracts the property to favorite, resolving it by id when the
// body does not carry the record.
func (d FavoritesDeps) record(w http.ResponseWriter, req *http.Request, sess *session.Session) (shard.PropertyRecord, bool) {
	var body FavoriteRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		Error(w, req, http.StatusBadRequest, "invalid_json", err.Error(), nil)
		return shard.PropertyRecord{}, false
	}
	if body.Record != nil {
		return *body.Record, true
	}
	if body.ID == "" && body.Key == "" {
		Error(w, req, http.StatusBadRequest, "id_required", "id, key or record is required", nil)
		return shard.PropertyRecord{}, false
	}
	res, err := d.Resolver.Resolve(req.Context(), sess, resolver.Request{ID: body.ID, NativeKey: body.Key})
	if err != nil {
		WriteResolveError(w, req, err)
		return shard.PropertyRecord{}, false
	}
	return res.Record, true
}

func writeFavoriteError(w http.ResponseWriter, req *http.Request, err error) {
	if errors.Is(err, favorites.ErrNoKey) {
		Error(w, req, http.StatusBadRequest, "no_property_key", err.Error(), nil)
		return
	}
	Error(w, req, http.StatusInternalServerError, "favorites_error", err.Error(), nil)
}

// WriteResolveError renders a property resolution failure.
func WriteResolveError(w http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.Is(err, resolver.ErrRecordNotFound):
		Error(w, req, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		Error(w, req, http.StatusServiceUnavailable, "canceled", err.Error(), map[string]any{"retry": true})
	default:
		Error(w, req, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}
