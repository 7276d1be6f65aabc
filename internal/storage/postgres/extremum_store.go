// Package postgres provides a Postgres-backed extremum store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for the key-value table.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type queryExecCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// ExtremumStore persists named watermarks in a two-column table.
type ExtremumStore struct {
	pool  queryExecCloser
	table string
}

// New creates a Postgres-backed ExtremumStore using the provided config.
func New(ctx context.Context, cfg Config) (*ExtremumStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ExtremumStore{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool queryExecCloser, table string) (*ExtremumStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ExtremumStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "keyvalues"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Init creates the table and seeds each key with NULL when absent.
func (s *ExtremumStore) Init(ctx context.Context, keys []string) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	name TEXT PRIMARY KEY,
	value DOUBLE PRECISION NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	// #nosec G201 -- table name validated against validTableName.
	seed := fmt.Sprintf(`INSERT INTO %s (name, value) VALUES ($1, NULL) ON CONFLICT (name) DO NOTHING`, s.table)
	for _, key := range keys {
		if _, err := s.pool.Exec(ctx, seed, key); err != nil {
			return fmt.Errorf("seed %s: %w", key, err)
		}
	}
	return nil
}

// Get returns the stored value, or nil when the key is absent or NULL.
func (s *ExtremumStore) Get(ctx context.Context, key string) (*float64, error) {
	// #nosec G201 -- table name validated against validTableName.
	query := fmt.Sprintf(`SELECT value FROM %s WHERE name = $1`, s.table)
	var value pgtype.Float8
	if err := s.pool.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	// #nosec G201 -- table name validated against validTableName.
	query := fmt.Sprintf(`INSERT INTO %s (name, value) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, s.table)
	if _, err := s.pool.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *ExtremumStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying connection pool.
func (s *ExtremumStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
