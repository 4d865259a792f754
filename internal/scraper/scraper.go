// Package scraper fetches article pages to fill in summaries that the
// feeds themselves left empty. Campus paper feeds are notorious for
// shipping items with no description at all.
package scraper

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"campusnews/internal/news"
)

const maxSummaryRunes = 400

type Scraper struct {
	client      *http.Client
	concurrency int
	maxArticles int
}

func New(concurrency, maxArticles int) *Scraper {
	if concurrency <= 0 {
		concurrency = 3
	}
	if maxArticles <= 0 {
		maxArticles = 20
	}
	return &Scraper{
		client:      &http.Client{Timeout: 15 * time.Second},
		concurrency: concurrency,
		maxArticles: maxArticles,
	}
}

// EnrichSummaries fetches the article page for items whose feed entry
// carried no summary and fills one in. Items that already have a
// summary are left alone. Failures leave the item unchanged.
func (s *Scraper) EnrichSummaries(ctx context.Context, items []news.NormalizedItem) []news.NormalizedItem {
	var targets []int
	for i := range items {
		if strings.TrimSpace(items[i].Summary) == "" {
			targets = append(targets, i)
		}
		if len(targets) >= s.maxArticles {
			break
		}
	}
	if len(targets) == 0 {
		return items
	}

	log.Printf("Enriching %d items with empty summaries", len(targets))

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	filled := 0

	for _, idx := range targets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			summary, err := s.fetchSummary(ctx, items[i].Link)
			if err != nil {
				log.Printf("⚠️ Can't get summary for %s: %v", items[i].Link, err)
				return
			}
			if summary == "" {
				return
			}

			items[i].Summary = summary
			mu.Lock()
			filled++
			mu.Unlock()
		}(idx)
	}
	wg.Wait()

	log.Printf("✅ Filled %d/%d missing summaries", filled, len(targets))
	return items
}

func (s *Scraper) fetchSummary(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("error building request: %v", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error loading page: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error parsing HTML: %v", err)
	}

	return extractSummary(doc), nil
}

// extractSummary prefers the page's own description meta tags and only
// then falls back to scraping body paragraphs.
func extractSummary(doc *goquery.Document) string {
	metaSelectors := []string{
		`meta[name="description"]`,
		`meta[property="og:description"]`,
		`meta[name="twitter:description"]`,
	}
	for _, selector := range metaSelectors {
		if content, ok := doc.Find(selector).First().Attr("content"); ok {
			if text := cleanSummary(content); text != "" {
				return text
			}
		}
	}

	// Most US campus papers run on SNO WordPress themes, hence the
	// sno selectors first.
	paragraphSelectors := []string{
		".sno-story-body p",
		".storycontent p",
		".article-body p",
		".entry-content p",
		"article p",
		"main p",
	}
	for _, selector := range paragraphSelectors {
		var paragraphs []string
		doc.Find(selector).Each(func(i int, sel *goquery.Selection) {
			text := strings.TrimSpace(sel.Text())
			if text != "" && len(text) > 20 {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) > 0 {
			if len(paragraphs) > 2 {
				paragraphs = paragraphs[:2]
			}
			return cleanSummary(strings.Join(paragraphs, " "))
		}
	}

	return ""
}

// cleanSummary collapses whitespace and truncates on a rune boundary.
func cleanSummary(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) > maxSummaryRunes {
		runes := []rune(text)
		trimmed := string(runes[:maxSummaryRunes])
		if idx := strings.LastIndex(trimmed, ". "); idx > 100 {
			trimmed = trimmed[:idx+1]
		}
		text = trimmed
	}
	return strings.TrimSpace(text)
}
