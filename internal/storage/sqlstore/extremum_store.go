// Package sqlstore persists watermarks in a SQLite-compatible database. Local
// paths open through modernc.org/sqlite; libsql:// and https:// URLs open a
// remote libSQL database.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

const (
	selectValue = `SELECT value FROM keyvalues WHERE name = ?`
	seedKey     = `INSERT INTO keyvalues (name, value) VALUES (?, NULL) ON CONFLICT(name) DO NOTHING`
	upsertValue = `INSERT INTO keyvalues (name, value) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET value = excluded.value`
)

// ExtremumStore implements stats.ExtremumStore over database/sql.
type ExtremumStore struct {
	db *sqlx.DB
}

// DriverFor picks the driver name for a DSN.
func DriverFor(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "libsql://"), strings.HasPrefix(dsn, "https://"), strings.HasPrefix(dsn, "http://"):
		return "libsql"
	default:
		return "sqlite"
	}
}

// Open connects to dsn with the matching driver.
func Open(ctx context.Context, dsn string) (*ExtremumStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	db, err := sqlx.ConnectContext(ctx, DriverFor(dsn), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", DriverFor(dsn), err)
	}
	if DriverFor(dsn) == "sqlite" {
		// A single writer avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
	}
	return &ExtremumStore{db: db}, nil
}

// NewWithDB wraps an existing handle (primarily for testing).
func NewWithDB(db *sql.DB, driver string) *ExtremumStore {
	return &ExtremumStore{db: sqlx.NewDb(db, driver)}
}

// Init creates the table and seeds each key with NULL when absent.
func (s *ExtremumStore) Init(ctx context.Context, keys []string) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, seedKey, key); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("seed %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get returns the stored value, or nil when the key is absent or NULL.
func (s *ExtremumStore) Get(ctx context.Context, key string) (*float64, error) {
	var value sql.NullFloat64
	if err := s.db.GetContext(ctx, &value, selectValue, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	if !value.Valid {
		return nil, nil
	}
	v := value.Float64
	return &v, nil
}

// Set upserts the value for key.
func (s *ExtremumStore) Set(ctx context.Context, key string, value float64) error {
	if _, err := s.db.ExecContext(ctx, upsertValue, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *ExtremumStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *ExtremumStore) Close() error {
	return s.db.Close()
}
