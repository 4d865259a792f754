// Package store persists the set of identity keys that have already been
// delivered in a report. Every backend loads the full key set at open, so
// membership checks during a run never touch the backing medium; new keys
// are buffered by Add and written out by Flush once delivery succeeded.
package store

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable is returned when the backing store cannot be opened or
// read. The pipeline treats it as fatal and aborts before any side
// effect: silently starting with an empty set would re-deliver the whole
// history as "new".
var ErrUnavailable = errors.New("seen store unavailable")

// SeenStore is the persistent seen-set contract.
//
// Contains and Len reflect the state loaded at open plus any keys added
// during this run. Add on a present key is a no-op. Flush persists the
// keys added since open; its error is a persistence warning, not a run
// failure (a later run may re-deliver, which beats losing today's report).
type SeenStore interface {
	Contains(key string) bool
	Add(key string, firstSeen time.Time)
	Flush() error
	Len() int
	Close() error
}

// Open builds a SeenStore for the configured backend. path is used by the
// file and sqlite backends, dsn by postgres.
func Open(backend, path, dsn string) (SeenStore, error) {
	switch backend {
	case "memory":
		return NewMemory(), nil
	case "file":
		return OpenFile(path)
	case "sqlite":
		return OpenSQLite(path)
	case "postgres":
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
