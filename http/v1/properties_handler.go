package v1

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	httpapi "github.com/yourorg/listing-api/http"
	"github.com/yourorg/listing-api/internal/browse"
	"github.com/yourorg/listing-api/internal/canon"
	"github.com/yourorg/listing-api/internal/idcodec"
	"github.com/yourorg/listing-api/internal/resolver"
	"github.com/yourorg/listing-api/shard"
)

type PropertiesDeps struct {
	Resolver  httpapi.PropertyResolver
	Loader    browse.Loader
	Locations *canon.LocationResolver
	Sessions  httpapi.Sessions
}

// SelectRequest picks the record at position Ordinal of the list the session
// is viewing. With Record set the list is not consulted and the id is minted
// from Record.Ordinal, the record's index in the stored shard.
type SelectRequest struct {
	Category string                `json:"category"`
	Location string                `json:"location"`
	Ordinal  int                   `json:"ordinal"`
	Record   *shard.PropertyRecord `json:"record,omitempty"`
}

type SelectResponse struct {
	ID  string `json:"id"`
	Key string `json:"key,omitempty"`
	URL string `json:"url"`
}

type PropertyResponse struct {
	ID     string               `json:"id"`
	Tier   resolver.Tier        `json:"tier"`
	Record shard.PropertyRecord `json:"record"`
}

func RegisterProperties(r chi.Router, d PropertiesDeps) {
	r.Route("/v1/properties", func(r chi.Router) {
		r.Post("/select", func(w http.ResponseWriter, req *http.Request) {
			var body SelectRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				httpapi.Error(w, req, http.StatusBadRequest, "invalid_json", err.Error(), nil)
				return
			}
			sel(w, req, d, body)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			sess := d.Sessions.From(w, req)
			res, err := d.Resolver.Resolve(req.Context(), sess, resolver.Request{ID: id, NativeKey: req.URL.Query().Get("key")})
			if err != nil {
				httpapi.WriteResolveError(w, req, err)
				return
			}
			render.JSON(w, req, PropertyResponse{ID: id, Tier: res.Tier, Record: res.Record})
		})
	})
}

func sel(w http.ResponseWriter, req *http.Request, d PropertiesDeps, body SelectRequest) {
	cat, ok := shard.ParseCategory(body.Category)
	if !ok {
		httpapi.Error(w, req, http.StatusBadRequest, "invalid_category", "category must be sale or lease", nil)
		return
	}
	if body.Location == "" || body.Ordinal < 0 {
		httpapi.Error(w, req, http.StatusBadRequest, "location_required", "location and a non-negative ordinal are required", nil)
		return
	}
	location := body.Location
	if key, err := d.Locations.Resolve(location); err == nil {
		location = key
	} else if body.Record == nil {
		httpapi.Error(w, req, http.StatusNotFound, "location_not_found", err.Error(), nil)
		return
	}

	sess := d.Sessions.From(w, req)
	var (
		id  string
		rec shard.PropertyRecord
	)
	if body.Record != nil {
		rec = *body.Record
		var err error
		if id, err = idcodec.Mint(cat, location, rec.Ordinal); err != nil {
			httpapi.Error(w, req, http.StatusBadRequest, "invalid_record", err.Error(), nil)
			return
		}
	} else {
		st := httpapi.View(sess, d.Loader).State()
		if st.Err != nil || st.Category != cat || st.Location != location || body.Ordinal >= len(st.Items) {
			httpapi.Error(w, req, http.StatusNotFound, "not_in_view", "the ordinal is not part of the current list", nil)
			return
		}
		id, rec = st.Items[body.Ordinal].ID, st.Items[body.Ordinal].Record
	}
	sess.Stash(id, rec)

	link := "/v1/properties/" + url.PathEscape(id)
	if rec.NativeID != "" {
		link += "?key=" + url.QueryEscape(rec.NativeID)
	}
	render.JSON(w, req, SelectResponse{ID: id, Key: rec.NativeID, URL: link})
}
