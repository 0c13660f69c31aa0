package database

import (
	"context"
	"database/sql"
	"fmt"

	"session-insights/internal/common/config"

	_ "modernc.org/sqlite"
)

// SQLiteClient wraps a modernc.org/sqlite handle. It backs local runs of the
// CLI and the in-memory statement tests.
type SQLiteClient struct {
	DB *sql.DB
}

// NewSQLite opens the database file at cfg.Path. ":memory:" is accepted.
func NewSQLite(cfg config.SQLiteConfig) (*SQLiteClient, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", cfg.Path, err)
	}
	// A single connection keeps ":memory:" databases coherent across calls.
	db.SetMaxOpenConns(1)

	return &SQLiteClient{DB: db}, nil
}

// Ping tests the database connection
func (c *SQLiteClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the database connection
func (c *SQLiteClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// Open returns a pool for the configured driver.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		c, err := NewSQLite(cfg.SQLite)
		if err != nil {
			return nil, err
		}
		return c.DB, nil
	case config.DriverPostgres:
		c, err := NewPostgres(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return c.DB, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
