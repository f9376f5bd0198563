// Package cache is the keyed store of loaded and transformed shards,
// consulted before any network fetch.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yourorg/listing-api/shard"
)

var (
	// ErrMiss means no usable entry exists for the key.
	ErrMiss = errors.New("cache miss")
	// ErrUnavailable means the backing store could not be reached.
	ErrUnavailable = errors.New("cache unavailable")
)

// SchemaVersion is written with every entry; anything else reads as a miss.
const SchemaVersion = 2

// Key is the composite (domain tag, location, category) cache key.
type Key struct {
	Domain   string
	Location string
	Category shard.Category
}

func (k Key) String() string { return fmt.Sprintf("%s:%s:%s", k.Domain, k.Location, k.Category) }

// Entry is one cached shard in its stored order. It is written once per load
// from the network and shared by every session; sessions keep their own order.
type Entry struct {
	Version  int                    `json:"v"`
	Records  []shard.PropertyRecord `json:"records"`
	StoredAt time.Time              `json:"stored_at"`
}

// Store is implemented by the memory, Redis and SQLite backends. Concurrent
// writers to the same key resolve last-write-wins.
type Store interface {
	Get(ctx context.Context, key Key) (Entry, error)
	Put(ctx context.Context, key Key, e Entry) error
	Delete(ctx context.Context, key Key) error
	Clear(ctx context.Context, domain string) error
}

func encodeEntry(e Entry) ([]byte, error) {
	e.Version = SchemaVersion
	return json.Marshal(e)
}

// decodeEntry treats undecodable or foreign-version payloads as misses so a
// schema change never breaks reads.
func decodeEntry(b []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, ErrMiss
	}
	if e.Version != SchemaVersion {
		return Entry{}, ErrMiss
	}
	return e, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
