package metrics

import (
	"sync"
	"time"
)

// Metrics collects counters for one or more digest runs. The monitoring
// endpoints in cmd read them through GetStats.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	ItemsFetched       int64
	MalformedItems     int64
	DuplicatesFiltered int64
	CandidatesScored   int64
	ItemsUnscored      int64
	BatchesFailed      int64
	ScoresClamped      int64
	TranslationsOK     int64
	TranslationsFailed int64
	ReportsDelivered   int64

	// Timings
	LastRunDuration    time.Duration
	AverageRunDuration time.Duration
	TotalRunDuration   time.Duration
	RunCount           int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) AddItemsFetched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsFetched += int64(n)
}

func (m *Metrics) IncrementMalformed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MalformedItems++
}

func (m *Metrics) IncrementDuplicatesFiltered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered++
}

func (m *Metrics) AddCandidatesScored(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CandidatesScored += int64(n)
}

func (m *Metrics) AddItemsUnscored(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsUnscored += int64(n)
}

func (m *Metrics) IncrementBatchesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BatchesFailed++
}

func (m *Metrics) IncrementScoresClamped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScoresClamped++
}

func (m *Metrics) IncrementTranslationsOK() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranslationsOK++
}

func (m *Metrics) IncrementTranslationsFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranslationsFailed++
}

func (m *Metrics) IncrementReportsDelivered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReportsDelivered++
}

func (m *Metrics) RecordRunDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastRunDuration = duration
	m.TotalRunDuration += duration
	m.RunCount++

	if m.RunCount > 0 {
		m.AverageRunDuration = m.TotalRunDuration / time.Duration(m.RunCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"items_fetched":           m.ItemsFetched,
		"malformed_items":         m.MalformedItems,
		"duplicates_filtered":     m.DuplicatesFiltered,
		"candidates_scored":       m.CandidatesScored,
		"items_unscored":          m.ItemsUnscored,
		"batches_failed":          m.BatchesFailed,
		"scores_clamped":          m.ScoresClamped,
		"translations_ok":         m.TranslationsOK,
		"translations_failed":     m.TranslationsFailed,
		"reports_delivered":       m.ReportsDelivered,
		"last_run_duration_ms":    m.LastRunDuration.Milliseconds(),
		"average_run_duration_ms": m.AverageRunDuration.Milliseconds(),
		"run_count":               m.RunCount,
		"last_run_time":           m.LastRunTime.Format(time.RFC3339),
		"last_error_time":         m.LastErrorTime.Format(time.RFC3339),
		"last_error":              m.LastError,
		"is_healthy":              m.IsHealthy,
	}
}
