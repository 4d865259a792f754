package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenFileMissingIsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen_items.csv")

	s, err := OpenFile(path)
	if err != nil {
		t.Fatalf("missing file must open as empty store: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, got %d keys", s.Len())
	}
}

func TestFileAddFlushReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen_items.csv")
	now := time.Now()

	s, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Add("abc123", now)
	s.Add("def456", now)
	if err := s.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	again, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if again.Len() != 2 {
		t.Fatalf("expected 2 keys after reopen, got %d", again.Len())
	}
	if !again.Contains("abc123") || !again.Contains("def456") {
		t.Error("keys lost across reopen")
	}
}

func TestFileFlushAppendsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen_items.csv")

	s, _ := OpenFile(path)
	s.Add("day1", time.Now())
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}

	s2, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s2.Add("day2", time.Now())
	if err := s2.Flush(); err != nil {
		t.Fatal(err)
	}

	s3, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !s3.Contains("day1") || !s3.Contains("day2") {
		t.Error("append log must accumulate keys across runs")
	}
}

func TestFileAddIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen_items.csv")

	s, _ := OpenFile(path)
	ts := time.Now()
	s.Add("same", ts)
	s.Add("same", ts.Add(time.Hour))

	if s.Len() != 1 {
		t.Errorf("duplicate add must be a no-op, got %d keys", s.Len())
	}
	if len(s.pending) != 1 {
		t.Errorf("duplicate add must not queue a second record, got %d", len(s.pending))
	}
}

func TestFileFlushNothingPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen_items.csv")

	s, _ := OpenFile(path)
	if err := s.Flush(); err != nil {
		t.Fatalf("empty flush should succeed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("empty flush should not create the file")
	}
}

func TestOpenFileCorruptIsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen_items.csv")
	content := "key,first_seen\nabc123,not-a-timestamp\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := OpenFile(path)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("corrupt store must fail fast with ErrUnavailable, got %v", err)
	}
}

func TestOpenFactory(t *testing.T) {
	s, err := Open("memory", "", "")
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	s.Close()

	if _, err := Open("carrier-pigeon", "", ""); err == nil {
		t.Error("unknown backend must be rejected")
	}
}
