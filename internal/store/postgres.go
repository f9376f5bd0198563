package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/yourorg/listing-api/shard"
)

// ErrNotFound is returned when no durable record matches.
var ErrNotFound = errors.New("record not found")

// Store is the durable record store holding administrator-entered listings.
// It is authoritative over static shards for any native key it holds.
type Store struct{ DB *sql.DB }

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{DB: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		`CREATE TABLE IF NOT EXISTS properties (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            property_key    TEXT NOT NULL,
            address_line1   TEXT NOT NULL,
            city            TEXT NOT NULL,
            state           TEXT NOT NULL,
            zip             TEXT NOT NULL,
            lat             DOUBLE PRECISION,
            lon             DOUBLE PRECISION,
            created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_properties_property_key ON properties(property_key);`,
		`CREATE TABLE IF NOT EXISTS listings (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            property_id       UUID NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
            provider          TEXT NOT NULL,
            source_id         TEXT NOT NULL,
            listing_id        TEXT,
            category          TEXT NOT NULL DEFAULT 'sale',
            status            TEXT NOT NULL,
            list_price        NUMERIC,
            beds              NUMERIC,
            baths             NUMERIC,
            sqft              INTEGER,
            extras            JSONB,
            created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_listings_provider_ids ON listings(provider, source_id, listing_id);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_listing_id ON listings(listing_id);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_property ON listings(property_id);`,
		`CREATE TABLE IF NOT EXISTS listing_photos (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            listing_id    UUID NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
            href          TEXT NOT NULL,
            position      INTEGER,
            created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_listphotos_listing ON listing_photos(listing_id);`,
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// ListingRecord is one listings row joined with its property and first photo.
type ListingRecord struct {
	ID           string
	PropertyKey  string
	ListingID    sql.NullString
	SourceID     string
	Category     string
	Status       string
	AddressLine1 string
	City         string
	State        string
	Zip          string
	Lat          sql.NullFloat64
	Lon          sql.NullFloat64
	ListPrice    sql.NullFloat64
	Beds         sql.NullFloat64
	Baths        sql.NullFloat64
	Sqft         sql.NullInt64
	Photo        sql.NullString
	Extras       []byte
}

// PropertyRecord adapts the row into the canonical record shape.
func (r ListingRecord) PropertyRecord() shard.PropertyRecord {
	native := r.SourceID
	if r.ListingID.Valid && r.ListingID.String != "" {
		native = r.ListingID.String
	}
	cat, ok := shard.ParseCategory(r.Category)
	if !ok {
		cat = shard.Sale
	}
	rec := shard.PropertyRecord{
		Key:        native,
		NativeID:   native,
		Category:   cat,
		Street:     r.AddressLine1,
		City:       r.City,
		Region:     r.State,
		PostalCode: r.Zip,
		Price:      shard.Price{OnRequest: true},
		Bedrooms:   nullFloat(r.Beds),
		Bathrooms:  nullFloat(r.Baths),
		Latitude:   nullFloat(r.Lat),
		Longitude:  nullFloat(r.Lon),
		Source:     shard.SourceStore,
	}
	if rec.Key == "" {
		rec.Key = r.ID
	}
	if r.ListPrice.Valid && r.ListPrice.Float64 > 0 {
		rec.Price = shard.Price{Amount: r.ListPrice.Float64}
	}
	if r.Sqft.Valid {
		v := float64(r.Sqft.Int64)
		rec.Area = &v
	}
	if r.Photo.Valid {
		rec.ImageURL = r.Photo.String
	}
	if len(r.Extras) > 0 && json.Valid(r.Extras) {
		rec.Raw = json.RawMessage(r.Extras)
	}
	return rec
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

const selectListing = `
    SELECT l.id, p.property_key, l.listing_id, l.source_id, l.category, l.status,
           p.address_line1, p.city, p.state, p.zip, p.lat, p.lon,
           l.list_price, l.beds, l.baths, l.sqft,
           (SELECT href FROM listing_photos ph WHERE ph.listing_id = l.id ORDER BY ph.position NULLS LAST LIMIT 1),
           l.extras
    FROM listings l
    JOIN properties p ON p.id = l.property_id`

func (s *Store) scanOne(row *sql.Row) (shard.PropertyRecord, error) {
	var r ListingRecord
	err := row.Scan(&r.ID, &r.PropertyKey, &r.ListingID, &r.SourceID, &r.Category, &r.Status,
		&r.AddressLine1, &r.City, &r.State, &r.Zip, &r.Lat, &r.Lon,
		&r.ListPrice, &r.Beds, &r.Baths, &r.Sqft, &r.Photo, &r.Extras)
	if errors.Is(err, sql.ErrNoRows) {
		return shard.PropertyRecord{}, ErrNotFound
	}
	if err != nil {
		return shard.PropertyRecord{}, err
	}
	return r.PropertyRecord(), nil
}

// FetchByNativeKey returns the newest active listing whose native id matches.
func (s *Store) FetchByNativeKey(ctx context.Context, key string) (shard.PropertyRecord, error) {
	if key == "" {
		return shard.PropertyRecord{}, ErrNotFound
	}
	row := s.DB.QueryRowContext(ctx, selectListing+`
    WHERE (l.listing_id = $1 OR l.source_id = $1) AND l.status <> 'removed'
    ORDER BY l.updated_at DESC
    LIMIT 1`, key)
	return s.scanOne(row)
}

// FetchByID returns the listing with the given primary id.
func (s *Store) FetchByID(ctx context.Context, id string) (shard.PropertyRecord, error) {
	row := s.DB.QueryRowContext(ctx, selectListing+`
    WHERE l.id::text = $1 AND l.status <> 'removed'`, id)
	return s.scanOne(row)
}

type UpsertInput struct {
	PropertyKey string
	Address1    string
	City        string
	State       string
	Zip         string
	Lat         sql.NullFloat64
	Lon         sql.NullFloat64
	// Listing bits
	Provider  string
	SourceID  string
	ListingID sql.NullString
	Category  shard.Category
	Status    string
	ListPrice sql.NullFloat64
	Beds      sql.NullFloat64
	Baths     sql.NullFloat64
	Sqft      sql.NullInt64
	Photos    []string
	Extras    []byte
}

type UpsertResult struct {
	PropertyID string
	ListingID  string
}

// Upsert writes one property and its listing in a single transaction. The
// service never calls it on a request path; seeding and tests do.
func (s *Store) Upsert(ctx context.Context, in UpsertInput) (UpsertResult, error) {
	var res UpsertResult
	if s.DB == nil {
		return res, errors.New("nil db")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx, `
        INSERT INTO properties (property_key, address_line1, city, state, zip, lat, lon)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (property_key)
        DO UPDATE SET address_line1=EXCLUDED.address_line1, city=EXCLUDED.city, state=EXCLUDED.state, zip=EXCLUDED.zip, lat=EXCLUDED.lat, lon=EXCLUDED.lon, updated_at=now()
        RETURNING id`,
		in.PropertyKey, in.Address1, in.City, in.State, in.Zip, in.Lat, in.Lon,
	).Scan(&res.PropertyID)
	if err != nil {
		return res, err
	}

	cat := in.Category
	if !cat.Valid() {
		cat = shard.Sale
	}
	var extras any
	if len(in.Extras) > 0 {
		extras = string(in.Extras)
	}
	err = tx.QueryRowContext(ctx, `
        INSERT INTO listings (property_id, provider, source_id, listing_id, category, status, list_price, beds, baths, sqft, extras)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (provider, source_id, listing_id)
        DO UPDATE SET property_id=EXCLUDED.property_id, category=EXCLUDED.category, status=EXCLUDED.status, list_price=EXCLUDED.list_price, beds=EXCLUDED.beds, baths=EXCLUDED.baths, sqft=EXCLUDED.sqft, extras=EXCLUDED.extras, updated_at=now()
        RETURNING id`,
		res.PropertyID, in.Provider, in.SourceID, in.ListingID, string(cat), in.Status, in.ListPrice, in.Beds, in.Baths, in.Sqft, extras,
	).Scan(&res.ListingID)
	if err != nil {
		return res, err
	}

	// photos: replace current set with new set
	if _, err = tx.ExecContext(ctx, `DELETE FROM listing_photos WHERE listing_id=$1`, res.ListingID); err != nil {
		return res, err
	}
	for i, href := range in.Photos {
		if href == "" {
			continue
		}
		if _, err = tx.ExecContext(ctx, `INSERT INTO listing_photos (listing_id, href, position) VALUES ($1,$2,$3)`, res.ListingID, href, i); err != nil {
			return res, err
		}
	}

	err = tx.Commit()
	return res, err
}
