package shard

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Location is one supported city/area from the catalog.
type Location struct {
	Key             string              `yaml:"key"`
	Name            string              `yaml:"name"`
	City            string              `yaml:"city"`
	State           string              `yaml:"state"`
	AlwaysRandomize bool                `yaml:"always_randomize"`
	Shards          map[Category]string `yaml:"shards"`
}

// Ref points at one physical shard resource.
type Ref struct {
	Category Category
	Location string
	Path     string // relative to the fetcher's base locator
}

func (r Ref) String() string { return fmt.Sprintf("%s/%s (%s)", r.Category, r.Location, r.Path) }

// Catalog is the static (category, location) -> shard reference table.
type Catalog struct {
	locations []Location
	byKey     map[string]int
}

// LoadCatalog parses a YAML catalog and validates every entry.
func LoadCatalog(b []byte) (*Catalog, error) {
	var doc struct {
		Locations []Location `yaml:"locations"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Locations) == 0 {
		return nil, errors.New("catalog has no locations")
	}
	c := &Catalog{byKey: make(map[string]int, len(doc.Locations))}
	for _, loc := range doc.Locations {
		loc.Key = strings.ToLower(strings.TrimSpace(loc.Key))
		if loc.Key == "" {
			return nil, errors.New("catalog location with empty key")
		}
		if _, dup := c.byKey[loc.Key]; dup {
			return nil, fmt.Errorf("duplicate catalog location %q", loc.Key)
		}
		for cat := range loc.Shards {
			if !cat.Valid() {
				return nil, fmt.Errorf("location %q: unknown category %q", loc.Key, cat)
			}
		}
		if loc.Name == "" {
			loc.Name = loc.Key
		}
		c.byKey[loc.Key] = len(c.locations)
		c.locations = append(c.locations, loc)
	}
	return c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Location(key string) (Location, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Location{}, false
	}
	return c.locations[i], true
}

func (c *Catalog) Locations() []Location {
	return append([]Location(nil), c.locations...)
}

// Keys returns every location key sorted longest-first, ties alphabetical.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.locations))
	for _, l := range c.locations {
		keys = append(keys, l.Key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

func (c *Catalog) Ref(cat Category, location string) (Ref, bool) {
	loc, ok := c.Location(location)
	if !ok {
		return Ref{}, false
	}
	p, ok := loc.Shards[cat]
	if !ok || p == "" {
		return Ref{}, false
	}
	return Ref{Category: cat, Location: loc.Key, Path: p}, true
}

// Refs enumerates every shard in catalog order, sale before lease.
func (c *Catalog) Refs() []Ref {
	var out []Ref
	for _, loc := range c.locations {
		for _, cat := range Categories {
			if ref, ok := c.Ref(cat, loc.Key); ok {
				out = append(out, ref)
			}
		}
	}
	return out
}

func (c *Catalog) AlwaysRandomize(location string) bool {
	loc, ok := c.Location(location)
	return ok && loc.AlwaysRandomize
}
