package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/yourorg/listing-api/http"
	httpv1 "github.com/yourorg/listing-api/http/v1"
	"github.com/yourorg/listing-api/internal/app"
	"github.com/yourorg/listing-api/internal/logger"
)

func BuildRouter(a *app.App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.Middleware(a.Log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"ok":true}`)) })
	r.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))

	limit := a.Config.RateLimit
	if limit <= 0 {
		limit = 100
	}
	sessions := httpapi.Sessions{Registry: a.Sessions}
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(limit, 1*time.Minute)) // protect the shard host
		r.Use(render.SetContentType(render.ContentTypeJSON))

		httpapi.RegisterLocations(r, httpapi.LocationsDeps{Catalog: a.Catalog, Resolver: a.Locations})
		listings := httpapi.ListingsDeps{
			Loader:    a.Loader,
			Locations: a.Locations,
			Sessions:  sessions,
			Logger:    a.Log.Named("http"),
		}
		if a.Refresher != nil {
			listings.Refresh = a.Refresher
		}
		httpapi.RegisterListings(r, listings)
		httpv1.RegisterProperties(r, httpv1.PropertiesDeps{
			Resolver:  a.Resolver,
			Loader:    a.Loader,
			Locations: a.Locations,
			Sessions:  sessions,
		})
		if a.Favorites != nil {
			httpapi.RegisterFavorites(r, httpapi.FavoritesDeps{Store: a.Favorites, Resolver: a.Resolver, Sessions: sessions})
		}
	})
	return r
}
