// Package translate renders report titles into Chinese. Every failure
// degrades to the original English title so a bad translation service
// never costs a report entry.
package translate

import (
	"context"
	"log"
	"strings"
	"time"

	"campusnews/internal/cache"
	"campusnews/internal/metrics"
)

const cacheTTL = 24 * time.Hour

// Translator is implemented by the AI providers.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

type Stage struct {
	translator Translator
	cache      *cache.Cache
	timeout    time.Duration
}

func NewStage(translator Translator, timeout time.Duration) *Stage {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Stage{
		translator: translator,
		cache:      cache.New(),
		timeout:    timeout,
	}
}

// Title translates a single title, falling back to the original text on
// any error or empty result.
func (s *Stage) Title(ctx context.Context, title string) string {
	if s.translator == nil {
		return title
	}

	key := s.cache.GenerateKey(title)
	if v, ok := s.cache.Get(key); ok {
		if zh, ok := v.(string); ok && zh != "" {
			return zh
		}
	}

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.translator.Translate(tctx, title)
	if err != nil {
		log.Printf("⚠️ Translation failed for %q: %v", title, err)
		metrics.Global.IncrementTranslationsFailed()
		return title
	}

	zh := Sanitize(raw)
	if zh == "" {
		log.Printf("⚠️ Translation came back empty for %q", title)
		metrics.Global.IncrementTranslationsFailed()
		return title
	}

	s.cache.Set(key, zh, cacheTTL)
	metrics.Global.IncrementTranslationsOK()
	return zh
}

// Titles translates every title in order. The result has the same
// length as the input.
func (s *Stage) Titles(ctx context.Context, titles []string) []string {
	out := make([]string, len(titles))
	for i, title := range titles {
		out[i] = s.Title(ctx, title)
	}
	return out
}

var labelPrefixes = []string{
	"翻译：", "翻译:",
	"译文：", "译文:",
	"中文：", "中文:",
	"Translation:", "translation:",
}

// Sanitize strips the chatter AI translators wrap around their output:
// label prefixes, matched quotes and trailing commentary lines.
func Sanitize(raw string) string {
	text := strings.TrimSpace(raw)

	// Models occasionally append explanations on extra lines. The
	// translation itself is always the first non-empty line.
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			text = line
			break
		}
	}

	for _, p := range labelPrefixes {
		if strings.HasPrefix(text, p) {
			text = strings.TrimSpace(strings.TrimPrefix(text, p))
		}
	}

	return strings.TrimSpace(trimMatchedQuotes(text))
}

func trimMatchedQuotes(s string) string {
	pairs := [][2]string{
		{`"`, `"`},
		{"“", "”"},
		{"「", "」"},
		{"『", "』"},
	}
	for _, p := range pairs {
		if strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) && len(s) > len(p[0])+len(p[1]) {
			return strings.TrimSpace(s[len(p[0]) : len(s)-len(p[1])])
		}
	}
	return s
}
