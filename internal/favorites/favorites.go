// Package favorites keeps the user's favorited and compared properties in the
// local SQLite database, independent of the shard cache.
package favorites

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/listing-api/internal/canon"
	"github.com/yourorg/listing-api/shard"
)

var ErrNoKey = errors.New("favorites: record has no property key")

// Entry is a favorite as captured at the time the user picked it. Display
// fields are denormalized and not refreshed when the shard changes.
type Entry struct {
	ID          string         `json:"id"`
	Owner       string         `json:"owner"`
	PropertyKey string         `json:"property_key"`
	Address     string         `json:"address"`
	Price       shard.Price    `json:"price"`
	ImageURL    string         `json:"image_url,omitempty"`
	Category    shard.Category `json:"category"`
	Source      string         `json:"source"`
	CreatedAt   time.Time      `json:"created_at"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS favorites (
		id           TEXT NOT NULL,
		owner        TEXT NOT NULL,
		property_key TEXT NOT NULL,
		address      TEXT NOT NULL,
		price        REAL,
		on_request   INTEGER NOT NULL DEFAULT 0,
		image_url    TEXT NOT NULL DEFAULT '',
		category     TEXT NOT NULL,
		source       TEXT NOT NULL,
		created_at   INTEGER NOT NULL,
		PRIMARY KEY (owner, property_key)
	)`)
	if err != nil {
		return nil, fmt.Errorf("migrate favorites: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Add favorites rec for owner. Adding a key that is already present keeps the
// original entry.
func (s *Store) Add(ctx context.Context, owner string, rec shard.PropertyRecord, source string) (Entry, error) {
	key := canon.PropertyKey(rec)
	if key == "" {
		return Entry{}, ErrNoKey
	}
	if source == "" {
		source = rec.Source
	}
	e := Entry{
		ID:          uuid.NewString(),
		Owner:       owner,
		PropertyKey: key,
		Address:     rec.Address(),
		Price:       rec.Price,
		ImageURL:    rec.ImageURL,
		Category:    rec.Category,
		Source:      source,
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
	}
	var price sql.NullFloat64
	if !e.Price.OnRequest {
		price = sql.NullFloat64{Float64: e.Price.Amount, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO favorites (id, owner, property_key, address, price, on_request, image_url, category, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner, property_key) DO NOTHING`,
		e.ID, e.Owner, e.PropertyKey, e.Address, price, e.Price.OnRequest, e.ImageURL, string(e.Category), e.Source, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("add favorite %s: %w", key, err)
	}
	return s.get(ctx, owner, key)
}

// Remove deletes the favorite; a missing key is not an error.
func (s *Store) Remove(ctx context.Context, owner, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM favorites WHERE owner = ? AND property_key = ?`, owner, key); err != nil {
		return fmt.Errorf("remove favorite %s: %w", key, err)
	}
	return nil
}

func (s *Store) Has(ctx context.Context, owner, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM favorites WHERE owner = ? AND property_key = ?`, owner, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has favorite %s: %w", key, err)
	}
	return true, nil
}

// List returns owner's favorites, oldest first.
func (s *Store) List(ctx context.Context, owner string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntry+` WHERE owner = ? ORDER BY created_at, property_key`, owner)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Toggle flips the favorite state of rec and reports the new state.
func (s *Store) Toggle(ctx context.Context, owner string, rec shard.PropertyRecord, source string) (bool, error) {
	key := canon.PropertyKey(rec)
	if key == "" {
		return false, ErrNoKey
	}
	has, err := s.Has(ctx, owner, key)
	if err != nil {
		return false, err
	}
	if has {
		return false, s.Remove(ctx, owner, key)
	}
	_, err = s.Add(ctx, owner, rec, source)
	return err == nil, err
}

const selectEntry = `SELECT id, owner, property_key, address, price, on_request, image_url, category, source, created_at FROM favorites`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e         Entry
		price     sql.NullFloat64
		onRequest bool
		category  string
		created   int64
	)
	if err := row.Scan(&e.ID, &e.Owner, &e.PropertyKey, &e.Address, &price, &onRequest, &e.ImageURL, &category, &e.Source, &created); err != nil {
		return Entry{}, err
	}
	e.Price = shard.Price{OnRequest: onRequest}
	if price.Valid && !onRequest {
		e.Price.Amount = price.Float64
	}
	e.Category = shard.Category(category)
	e.CreatedAt = time.UnixMilli(created).UTC()
	return e, nil
}

func (s *Store) get(ctx context.Context, owner, key string) (Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, selectEntry+` WHERE owner = ? AND property_key = ?`, owner, key))
	if err != nil {
		return Entry{}, fmt.Errorf("read favorite %s: %w", key, err)
	}
	return e, nil
}
