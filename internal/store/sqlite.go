// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite.
// ABOUTME: Provides audit/role/ADP persistence with automatic schema creation.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_entries (
			entry_id  TEXT PRIMARY KEY,
			wallet_id TEXT NOT NULL,
			service   TEXT NOT NULL,
			cost      INTEGER NOT NULL,
			currency  TEXT NOT NULL,
			ts        TEXT NOT NULL,
			signature TEXT NOT NULL,
			scheme    TEXT NOT NULL,

			CHECK (cost >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_audit_wallet_ts
			ON audit_entries(wallet_id, ts DESC);

		CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_entries(ts DESC);

		CREATE TABLE IF NOT EXISTS role_assignments (
			wallet_id  TEXT PRIMARY KEY,
			role       TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS adp_associations (
			domain        TEXT PRIMARY KEY,
			ecash_address TEXT NOT NULL,
			verified_at   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS wallet_keys (
			wallet_id   TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			bound_at    TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ensure SQLiteStore implements the Store interface.
var _ Store = (*SQLiteStore)(nil)
