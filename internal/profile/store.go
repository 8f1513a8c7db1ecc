// Package profile persists deck snapshots as opaque blobs keyed by name.
//
// Store is the sqlite side, Handler exposes it over REST on the bridge and
// Client is what the deck talks to.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
const SchemaVersion = 1

// ErrNotFound is returned when no blob is stored under a key.
var ErrNotFound = errors.New("profile not found")

// Store is a sqlite key/value table. Safe for concurrent use; several
// processes may share the file through WAL mode and the busy timeout.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and migrates it.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("profile: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("profile: open: %w", err)
	}
	// PRAGMAs below are per connection; one connection keeps them in force.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("profile: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("profile: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("profile: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("profile: create profiles: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)`,
		fmt.Sprintf("%d", SchemaVersion),
	); err != nil {
		return fmt.Errorf("profile: set schema version: %w", err)
	}

	return tx.Commit()
}

// Load returns the blob stored under key, or ErrNotFound.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM profiles WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("profile: load %s: %w", key, err)
	}
	return value, nil
}

// Save stores blob under key, replacing any previous value.
func (s *Store) Save(ctx context.Context, key string, blob []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if blob == nil {
		blob = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, blob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("profile: save %s: %w", key, err)
	}
	return nil
}

// Delete removes key, or returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("profile: delete %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

// Keys lists stored keys in sorted order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM profiles ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("profile: keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("profile: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// StoredSchemaVersion reads the schema version recorded in metadata.
func (s *Store) StoredSchemaVersion() (int, error) {
	var v int
	if err := s.db.QueryRow(`SELECT CAST(value AS INTEGER) FROM metadata WHERE key = 'schema_version'`).Scan(&v); err != nil {
		return 0, fmt.Errorf("profile: schema version: %w", err)
	}
	return v, nil
}

// Close checkpoints WAL and closes the database.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
