package ratelimit

import (
	"fmt"
	"log"
	"sync"
)

// Budget caps how many model requests a single digest run may spend.
// Zero for any limit means unlimited. Scoring and translation share the
// same total so a huge feed day cannot blow through the API quota.
type Budget struct {
	mu            sync.Mutex
	deepseekCount int
	geminiCount   int
	totalCount    int
	maxDeepSeek   int
	maxGemini     int
	maxTotal      int
}

// NewBudget creates a request budget with per-provider and total limits
func NewBudget(maxDeepSeek, maxGemini, maxTotal int) *Budget {
	return &Budget{
		maxDeepSeek: maxDeepSeek,
		maxGemini:   maxGemini,
		maxTotal:    maxTotal,
	}
}

// CanUseDeepSeek checks if we can make a DeepSeek request
func (b *Budget) CanUseDeepSeek() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxDeepSeek > 0 && b.deepseekCount >= b.maxDeepSeek {
		log.Printf("⚠️ DeepSeek request budget reached (%d/%d)", b.deepseekCount, b.maxDeepSeek)
		return false
	}

	if b.maxTotal > 0 && b.totalCount >= b.maxTotal {
		log.Printf("⚠️ Total request budget reached (%d/%d)", b.totalCount, b.maxTotal)
		return false
	}

	return true
}

// CanUseGemini checks if we can make a Gemini request
func (b *Budget) CanUseGemini() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxGemini > 0 && b.geminiCount >= b.maxGemini {
		log.Printf("⚠️ Gemini request budget reached (%d/%d)", b.geminiCount, b.maxGemini)
		return false
	}

	if b.maxTotal > 0 && b.totalCount >= b.maxTotal {
		log.Printf("⚠️ Total request budget reached (%d/%d)", b.totalCount, b.maxTotal)
		return false
	}

	return true
}

// UseDeepSeek spends one DeepSeek request from the budget
func (b *Budget) UseDeepSeek() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxDeepSeek > 0 && b.deepseekCount >= b.maxDeepSeek {
		return fmt.Errorf("deepseek request budget exceeded (%d/%d)", b.deepseekCount, b.maxDeepSeek)
	}

	if b.maxTotal > 0 && b.totalCount >= b.maxTotal {
		return fmt.Errorf("total request budget exceeded (%d/%d)", b.totalCount, b.maxTotal)
	}

	b.deepseekCount++
	b.totalCount++

	return nil
}

// UseGemini spends one Gemini request from the budget
func (b *Budget) UseGemini() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxGemini > 0 && b.geminiCount >= b.maxGemini {
		return fmt.Errorf("gemini request budget exceeded (%d/%d)", b.geminiCount, b.maxGemini)
	}

	if b.maxTotal > 0 && b.totalCount >= b.maxTotal {
		return fmt.Errorf("total request budget exceeded (%d/%d)", b.totalCount, b.maxTotal)
	}

	b.geminiCount++
	b.totalCount++

	return nil
}

// GetStats returns current budget usage
func (b *Budget) GetStats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[string]interface{}{
		"deepseek_used":  b.deepseekCount,
		"deepseek_limit": b.maxDeepSeek,
		"gemini_used":    b.geminiCount,
		"gemini_limit":   b.maxGemini,
		"total_used":     b.totalCount,
		"total_limit":    b.maxTotal,
	}
}

// PrintStats logs current usage
func (b *Budget) PrintStats() {
	stats := b.GetStats()
	log.Printf("📊 === Request Budget ===")
	log.Printf("  DeepSeek: %d/%d", stats["deepseek_used"], stats["deepseek_limit"])
	log.Printf("  Gemini:   %d/%d", stats["gemini_used"], stats["gemini_limit"])
	log.Printf("  Total:    %d/%d", stats["total_used"], stats["total_limit"])
	log.Printf("========================")
}
