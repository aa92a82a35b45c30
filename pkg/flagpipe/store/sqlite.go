package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists flags to SQLite so a process restart can serve the
// last known flag configuration before the transport reconnects.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite flag store.
// The path should be a file path (e.g., "./flags.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS flags (
			key TEXT NOT NULL PRIMARY KEY,
			version INTEGER NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Upsert implements Store.
func (s *SQLiteStore) Upsert(flag Flag) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrStoreClosed
	}

	data, err := json.Marshal(flag)
	if err != nil {
		return false, fmt.Errorf("encode flag: %w", err)
	}

	// The WHERE clause on the conflict branch enforces version monotonicity.
	res, err := s.db.Exec(`
		INSERT INTO flags (key, version, deleted, data)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(key) DO UPDATE SET
			version = excluded.version,
			deleted = 0,
			data = excluded.data
		WHERE flags.version < excluded.version
	`, flag.Key, flag.Version, data)
	if err != nil {
		return false, fmt.Errorf("upsert flag: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert flag: %w", err)
	}
	return n > 0, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(key string) (Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Flag{}, ErrStoreClosed
	}

	var data []byte
	var deleted int
	err := s.db.QueryRow(`
		SELECT data, deleted FROM flags WHERE key = ?
	`, key).Scan(&data, &deleted)

	if err == sql.ErrNoRows {
		return Flag{}, ErrNotFound
	}
	if err != nil {
		return Flag{}, fmt.Errorf("load flag: %w", err)
	}
	if deleted != 0 {
		return Flag{}, ErrNotFound
	}

	var flag Flag
	if err := json.Unmarshal(data, &flag); err != nil {
		return Flag{}, fmt.Errorf("decode flag: %w", err)
	}
	return flag, nil
}

// All implements Store.
func (s *SQLiteStore) All() ([]Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT data FROM flags WHERE deleted = 0 ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	defer rows.Close()

	var flags []Flag
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan flag: %w", err)
		}
		var flag Flag
		if err := json.Unmarshal(data, &flag); err != nil {
			return nil, fmt.Errorf("decode flag: %w", err)
		}
		flags = append(flags, flag)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flags: %w", err)
	}

	return flags, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(key string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	data, err := json.Marshal(Flag{Key: key, Version: version})
	if err != nil {
		return fmt.Errorf("encode tombstone: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO flags (key, version, deleted, data)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			version = excluded.version,
			deleted = 1,
			data = excluded.data
		WHERE flags.version < excluded.version
	`, key, version, data)
	if err != nil {
		return fmt.Errorf("delete flag: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
