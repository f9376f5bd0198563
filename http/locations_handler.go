package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/listing-api/internal/canon"
	"github.com/yourorg/listing-api/shard"
)

type LocationsDeps struct {
	Catalog  *shard.Catalog
	Resolver *canon.LocationResolver
}

type locationView struct {
	Key             string           `json:"key"`
	Name            string           `json:"name"`
	City            string           `json:"city,omitempty"`
	State           string           `json:"state,omitempty"`
	AlwaysRandomize bool             `json:"always_randomize"`
	Categories      []shard.Category `json:"categories"`
}

func viewOf(loc shard.Location) locationView {
	v := locationView{Key: loc.Key, Name: loc.Name, City: loc.City, State: loc.State, AlwaysRandomize: loc.AlwaysRandomize}
	for _, c := range shard.Categories {
		if _, ok := loc.Shards[c]; ok {
			v.Categories = append(v.Categories, c)
		}
	}
	return v
}

func RegisterLocations(r chi.Router, d LocationsDeps) {
	r.Get("/v1/locations", func(w http.ResponseWriter, req *http.Request) {
		locs := d.Catalog.Locations()
		out := make([]locationView, 0, len(locs))
		for _, l := range locs {
			out = append(out, viewOf(l))
		}
		render.JSON(w, req, map[string]any{"locations": out})
	})

	r.Get("/v1/locations/resolve", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query().Get("q")
		if q == "" {
			Error(w, req, http.StatusBadRequest, "query_required", "q is required", nil)
			return
		}
		key, err := d.Resolver.Resolve(q)
		if err != nil {
			writeLocationError(w, req, err)
			return
		}
		loc, _ := d.Catalog.Location(key)
		render.JSON(w, req, map[string]any{"query": q, "location": viewOf(loc)})
	})
}

func writeLocationError(w http.ResponseWriter, req *http.Request, err error) {
	var nf *canon.LocationNotFoundError
	if errors.As(err, &nf) {
		Error(w, req, http.StatusNotFound, "location_not_found", err.Error(), map[string]any{"suggestions": nf.Suggestions})
		return
	}
	Error(w, req, http.StatusNotFound, "location_not_found", err.Error(), nil)
}
