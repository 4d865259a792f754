package store

import (
	"sync"
	"time"
)

// Memory keeps the seen set in process memory only. Used by tests and by
// dry runs where re-delivery on the next day does not matter.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{keys: make(map[string]time.Time)}
}

func (m *Memory) Contains(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.keys[key]
	return ok
}

func (m *Memory) Add(key string, firstSeen time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return
	}
	m.keys[key] = firstSeen
}

func (m *Memory) Flush() error { return nil }

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

func (m *Memory) Close() error { return nil }
