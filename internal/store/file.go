package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// record is one line of the append log.
type record struct {
	Key       string
	FirstSeen time.Time
}

// File is a CSV append log of seen keys, the default backend. A missing
// file is a valid empty store (first run); an existing file that cannot
// be parsed is ErrUnavailable.
type File struct {
	mu      sync.RWMutex
	path    string
	keys    map[string]time.Time
	pending []record
	fresh   bool // no file on disk yet, Flush must write the header
}

const fileHeader = "key,first_seen"

func OpenFile(path string) (*File, error) {
	f := &File{
		path: path,
		keys: make(map[string]time.Time),
	}

	fd, err := os.Open(path)
	if os.IsNotExist(err) {
		f.fresh = true
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer fd.Close()

	r := csv.NewReader(fd)
	r.FieldsPerRecord = 2

	// Header row.
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			f.fresh = true
			return f, nil
		}
		return nil, fmt.Errorf("%w: reading header of %s: %v", ErrUnavailable, path, err)
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt row in %s: %v", ErrUnavailable, path, err)
		}
		firstSeen, err := time.Parse(time.RFC3339, row[1])
		if err != nil {
			return nil, fmt.Errorf("%w: bad timestamp in %s: %v", ErrUnavailable, path, err)
		}
		f.keys[row[0]] = firstSeen
	}

	return f, nil
}

func (f *File) Contains(key string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.keys[key]
	return ok
}

func (f *File) Add(key string, firstSeen time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[key]; ok {
		return
	}
	f.keys[key] = firstSeen
	f.pending = append(f.pending, record{Key: key, FirstSeen: firstSeen})
}

// Flush appends the keys added since open. Existing lines are never
// rewritten; the log only grows.
func (f *File) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == 0 {
		return nil
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create store directory: %v", err)
		}
	}

	fd, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open store file: %v", err)
	}
	defer fd.Close()

	if f.fresh {
		if _, err := fmt.Fprintln(fd, fileHeader); err != nil {
			return fmt.Errorf("failed to write header: %v", err)
		}
	}

	w := csv.NewWriter(fd)
	for _, rec := range f.pending {
		if err := w.Write([]string{rec.Key, rec.FirstSeen.UTC().Format(time.RFC3339)}); err != nil {
			return fmt.Errorf("failed to append record: %v", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush store file: %v", err)
	}

	f.pending = nil
	f.fresh = false
	return nil
}

func (f *File) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.keys)
}

func (f *File) Close() error { return nil }
