package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// Postgres backs the seen set with a shared database, for setups where
// several machines take turns producing the digest.
type Postgres struct {
	mu      sync.RWMutex
	db      *sql.DB
	keys    map[string]time.Time
	pending []record
}

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS seen_items (
		key VARCHAR(64) PRIMARY KEY,
		first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_seen_items_first_seen ON seen_items(first_seen);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %v", ErrUnavailable, err)
	}

	p := &Postgres{db: db, keys: make(map[string]time.Time)}

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
		p.keys[key] = firstSeen
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return p, nil
}

func (p *Postgres) Contains(key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.keys[key]
	return ok
}

func (p *Postgres) Add(key string, firstSeen time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.keys[key]; ok {
		return
	}
	p.keys[key] = firstSeen
	p.pending = append(p.pending, record{Key: key, FirstSeen: firstSeen})
}

func (p *Postgres) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) == 0 {
		return nil
	}

	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin store transaction: %v", err)
	}

	// ON CONFLICT keeps the flush idempotent if another machine delivered
	// the same story first.
	stmt, err := tx.Prepare(`
		INSERT INTO seen_items (key, first_seen)
		VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %v", err)
	}
	defer stmt.Close()

	for _, rec := range p.pending {
		if _, err := stmt.Exec(rec.Key, rec.FirstSeen.UTC()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert key: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seen keys: %v", err)
	}

	p.pending = nil
	return nil
}

func (p *Postgres) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.keys)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
