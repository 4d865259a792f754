package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite keeps the seen set in a local database file. Contains still
// answers from memory; the database is only touched at open and flush.
type SQLite struct {
	mu      sync.RWMutex
	db      *sql.DB
	keys    map[string]time.Time
	pending []record
}

func OpenSQLite(path string) (*SQLite, error) {
	memory := strings.Contains(path, ":memory:")

	if !memory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if memory {
		// A :memory: database exists per connection; keep exactly one.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	schema := `CREATE TABLE IF NOT EXISTS seen_items (
		key TEXT PRIMARY KEY,
		first_seen TIMESTAMP NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s := &SQLite{db: db, keys: make(map[string]time.Time)}

	rows, err := db.Query(`SELECT key, first_seen FROM seen_items`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var firstSeen time.Time
		if err := rows.Scan(&key, &firstSeen); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		s.keys[key] = firstSeen
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return s, nil
}

func (s *SQLite) Contains(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

func (s *SQLite) Add(key string, firstSeen time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return
	}
	s.keys[key] = firstSeen
	s.pending = append(s.pending, record{Key: key, FirstSeen: firstSeen})
}

func (s *SQLite) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin store transaction: %v", err)
	}

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO seen_items (key, first_seen) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %v", err)
	}
	defer stmt.Close()

	for _, rec := range s.pending {
		if _, err := stmt.Exec(rec.Key, rec.FirstSeen.UTC()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert key: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seen keys: %v", err)
	}

	s.pending = nil
	return nil
}

func (s *SQLite) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
