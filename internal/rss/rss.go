// Package rss loads the feed roster and pulls the day's items.
package rss

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"campusnews/internal/news"
)

// Feed is one entry of config/feeds.yaml.
type Feed struct {
	ID   string   `yaml:"id"`
	Name string   `yaml:"name"`
	URL  string   `yaml:"url"`
	Tags []string `yaml:"tags"`
}

// FeedsConfig is the YAML config structure
// feeds:
//   - id: thetech
//     name: The Tech
//     url: https://...
//     tags: [mit, stem]
type FeedsConfig struct {
	Feeds []Feed `yaml:"feeds"`
}

// LoadFeeds reads the feed roster from a YAML file.
func LoadFeeds(path string) ([]Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return cfg.Feeds, nil
}

// Source adapts a feed roster to the pipeline's fetch step.
type Source struct {
	Feeds []Feed
}

func (s *Source) Fetch(ctx context.Context) []news.FeedItem {
	return FetchAll(ctx, s.Feeds)
}

// FetchAll downloads and parses all feeds. A broken feed is logged and
// skipped, never fatal.
func FetchAll(ctx context.Context, feeds []Feed) []news.FeedItem {
	parser := gofeed.NewParser()
	now := time.Now().UTC()

	var all []news.FeedItem
	successCount := 0

	for _, feed := range feeds {
		parsed, err := parser.ParseURLWithContext(feed.URL, ctx)
		if err != nil {
			log.Printf("Error parsing RSS %s: %v", feed.URL, err)
			continue
		}

		source := feed.Name
		if source == "" {
			source = parsed.Title
		}

		for _, entry := range parsed.Items {
			published := entry.PublishedParsed
			if published == nil {
				published = entry.UpdatedParsed
			}
			all = append(all, news.FeedItem{
				FeedID:    feed.ID,
				Source:    source,
				Tags:      feed.Tags,
				Title:     entry.Title,
				Link:      entry.Link,
				Summary:   entry.Description,
				Published: published,
				Fetched:   now,
			})
		}

		successCount++
		log.Printf("Loaded %d news from %s", len(parsed.Items), source)
	}

	log.Printf("Processed RSS feeds: %d/%d ok", successCount, len(feeds))
	return all
}

// FilterRecent keeps items published within the last daysWindow days.
// Items without a publish date fall back to their fetch time.
func FilterRecent(items []news.FeedItem, daysWindow int) []news.FeedItem {
	if daysWindow <= 0 {
		return items
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -daysWindow)
	var recent []news.FeedItem
	for _, item := range items {
		ts := item.Fetched
		if item.Published != nil {
			ts = *item.Published
		}
		if !ts.Before(cutoff) {
			recent = append(recent, item)
		}
	}
	return recent
}

// WriteSnapshot archives the raw fetch as a dated CSV so a run can be
// replayed or inspected later. Returns the written path.
func WriteSnapshot(dir string, items []news.FeedItem, day time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("news_%s.csv", day.Format("2006-01-02")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"feed_id", "feed_name", "tags", "title", "link", "summary", "published", "fetched_at"}); err != nil {
		return "", err
	}
	for _, item := range items {
		published := ""
		if item.Published != nil {
			published = item.Published.Format(time.RFC3339)
		}
		record := []string{
			item.FeedID,
			item.Source,
			strings.Join(item.Tags, ","),
			item.Title,
			item.Link,
			item.Summary,
			published,
			item.Fetched.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return path, nil
}
