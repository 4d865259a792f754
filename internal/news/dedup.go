package news

import (
	"campusnews/internal/logger"
	"campusnews/internal/metrics"
)

// Seen is the read-only view of the seen store that deduplication needs.
// The store itself is only written after a report has been handed off.
type Seen interface {
	Contains(key string) bool
}

// Dedup filters out items whose key is already in the seen store, plus
// repeats of the same key within this run (two feeds carrying the same
// story). Input order is preserved; the store is never mutated here.
func Dedup(items []NormalizedItem, seen Seen) []NormalizedItem {
	kept := make([]NormalizedItem, 0, len(items))
	inRun := make(map[string]bool, len(items))

	for _, it := range items {
		if inRun[it.Key] {
			logger.Debug("duplicate within run", "title", it.Title, "key", it.Key)
			metrics.Global.IncrementDuplicatesFiltered()
			continue
		}
		if seen.Contains(it.Key) {
			logger.Debug("already delivered", "title", it.Title, "key", it.Key)
			metrics.Global.IncrementDuplicatesFiltered()
			continue
		}
		inRun[it.Key] = true
		kept = append(kept, it)
	}

	return kept
}
