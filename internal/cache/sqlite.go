package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteStore persists entries in a local SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS shard_cache (
		domain    TEXT NOT NULL,
		location  TEXT NOT NULL,
		category  TEXT NOT NULL,
		payload   BLOB NOT NULL,
		stored_at INTEGER NOT NULL,
		PRIMARY KEY (domain, location, category)
	)`)
	if err != nil {
		return nil, fmt.Errorf("migrate shard_cache: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key Key) (Entry, error) {
	var b []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM shard_cache WHERE domain = ? AND location = ? AND category = ?`,
		key.Domain, key.Location, string(key.Category),
	).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, unavailable("sqlite get", err)
	}
	return decodeEntry(b)
}

func (s *SQLiteStore) Put(ctx context.Context, key Key, e Entry) error {
	b, err := encodeEntry(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shard_cache (domain, location, category, payload, stored_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (domain, location, category)
		DO UPDATE SET payload = excluded.payload, stored_at = excluded.stored_at`,
		key.Domain, key.Location, string(key.Category), b, e.StoredAt.UnixMilli(),
	)
	if err != nil {
		return unavailable("sqlite put", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM shard_cache WHERE domain = ? AND location = ? AND category = ?`,
		key.Domain, key.Location, string(key.Category))
	if err != nil {
		return unavailable("sqlite delete", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, domain string) error {
	var err error
	if domain == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM shard_cache`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM shard_cache WHERE domain = ?`, domain)
	}
	if err != nil {
		return unavailable("sqlite clear", err)
	}
	return nil
}
