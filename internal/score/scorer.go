// Package score turns deduplicated candidates into interest scores by
// batching them through an external model provider. Failures stay local
// to a batch: its items end up unscored and drop out of the ranking,
// while every other batch still counts.
package score

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campusnews/internal/logger"
	"campusnews/internal/metrics"
	"campusnews/internal/news"
	"campusnews/internal/retry"
)

// Candidate is the slice of an item a provider gets to see.
type Candidate struct {
	Source  string
	Title   string
	Summary string
}

// Provider scores one batch of candidates against a user profile. The
// returned map is keyed by each candidate's 1-based position in the
// batch. Providers parse their wire format strictly and return an error
// for anything they cannot account for; they never invent scores.
type Provider interface {
	Name() string
	ScoreBatch(ctx context.Context, profile string, batch []Candidate) (map[int]int, error)
}

type Config struct {
	BatchSize      int
	MaxWorkers     int
	RequestTimeout time.Duration
}

type Scorer struct {
	provider Provider
	cfg      Config
}

func New(provider Provider, cfg Config) *Scorer {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 10
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Scorer{provider: provider, cfg: cfg}
}

// Score evaluates items against the profile. The result has one entry
// per input item, in input order; items from failed batches carry
// Scored=false. Batches run on a bounded worker pool and each gets one
// immediate re-attempt before giving up.
func (s *Scorer) Score(ctx context.Context, profile string, items []news.NormalizedItem) []news.ScoredItem {
	result := make([]news.ScoredItem, len(items))
	for i, it := range items {
		result[i] = news.ScoredItem{NormalizedItem: it}
	}
	if len(items) == 0 {
		return result
	}

	batches := splitBatches(items, s.cfg.BatchSize)
	logger.Info("scoring candidates", "items", len(items), "batches", len(batches),
		"provider", s.provider.Name(), "workers", s.cfg.MaxWorkers)

	var mu sync.Mutex
	scores := make(map[string]int, len(items))

	workers := s.cfg.MaxWorkers
	if workers > len(batches) {
		workers = len(batches)
	}

	jobs := make(chan []news.NormalizedItem)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				batchScores, err := s.scoreBatch(ctx, profile, batch)
				if err != nil {
					logger.Warn("⚠️ batch unscored", "items", len(batch), "error", err)
					metrics.Global.IncrementBatchesFailed()
					metrics.Global.AddItemsUnscored(len(batch))
					continue
				}
				mu.Lock()
				for key, sc := range batchScores {
					scores[key] = sc
				}
				mu.Unlock()
			}
		}()
	}

	for _, b := range batches {
		jobs <- b
	}
	close(jobs)
	wg.Wait()

	scoredCount := 0
	for i := range result {
		if sc, ok := scores[result[i].Key]; ok {
			result[i].Score = sc
			result[i].Scored = true
			scoredCount++
		}
	}
	metrics.Global.AddCandidatesScored(scoredCount)

	return result
}

// scoreBatch runs one batch through the provider, with a single
// immediate re-attempt. Every returned map covers the whole batch; a
// partial or malformed response fails the batch as a whole rather than
// risking scores attached to the wrong items.
func (s *Scorer) scoreBatch(ctx context.Context, profile string, batch []news.NormalizedItem) (map[string]int, error) {
	candidates := make([]Candidate, len(batch))
	for i, it := range batch {
		candidates[i] = Candidate{Source: it.Source, Title: it.Title, Summary: it.Summary}
	}

	var raw map[int]int
	err := retry.WithRetry(ctx, retry.RetryConfig{MaxAttempts: 2}, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()

		got, err := s.provider.ScoreBatch(attemptCtx, profile, candidates)
		if err != nil {
			return err
		}
		if err := validateCoverage(got, len(candidates)); err != nil {
			return err
		}
		raw = got
		return nil
	})
	if err != nil {
		return nil, err
	}

	scores := make(map[string]int, len(batch))
	for i, it := range batch {
		sc := raw[i+1]
		if sc < 0 || sc > 100 {
			clamped := clamp(sc)
			logger.Warn("⚠️ score out of range, clamping", "title", it.Title, "score", sc, "clamped", clamped)
			metrics.Global.IncrementScoresClamped()
			sc = clamped
		}
		scores[it.Key] = sc
	}
	return scores, nil
}

func validateCoverage(raw map[int]int, n int) error {
	if len(raw) != n {
		return fmt.Errorf("response covers %d of %d items", len(raw), n)
	}
	for i := 1; i <= n; i++ {
		if _, ok := raw[i]; !ok {
			return fmt.Errorf("response missing item %d of %d", i, n)
		}
	}
	return nil
}

func clamp(sc int) int {
	if sc < 0 {
		return 0
	}
	if sc > 100 {
		return 100
	}
	return sc
}

func splitBatches(items []news.NormalizedItem, size int) [][]news.NormalizedItem {
	var batches [][]news.NormalizedItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
