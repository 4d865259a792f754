// Package pipeline runs the daily digest end to end: fetch, normalize,
// dedup, score, rank, translate, deliver, and only then mark items as
// seen. Delivery is at-least-once: a failed flush means tomorrow's run
// may repeat items, never lose them.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"campusnews/internal/logger"
	"campusnews/internal/metrics"
	"campusnews/internal/news"
	"campusnews/internal/report"
	"campusnews/internal/rss"
	"campusnews/internal/store"
)

type FeedSource interface {
	Fetch(ctx context.Context) []news.FeedItem
}

type Enricher interface {
	EnrichSummaries(ctx context.Context, items []news.NormalizedItem) []news.NormalizedItem
}

type Scorer interface {
	Score(ctx context.Context, profile string, items []news.NormalizedItem) []news.ScoredItem
}

type TitleTranslator interface {
	Titles(ctx context.Context, titles []string) []string
}

type Delivery interface {
	Name() string
	Deliver(ctx context.Context, subject, body string) error
}

type Pipeline struct {
	Source     FeedSource
	Seen       store.SeenStore
	Scorer     Scorer
	Enricher   Enricher        // optional
	Translator TitleTranslator // optional
	Deliveries []Delivery      // empty means report-only run

	Profile       string
	DaysWindow    int
	MaxCandidates int
	TopN          int

	RawDir    string // "" disables the raw CSV snapshot
	ReportDir string // "" disables the report archive

	Now func() time.Time // for tests; defaults to time.Now
}

// Summary is what one run did, for logs and the monitoring endpoint.
type Summary struct {
	RunID      string
	Fetched    int
	Malformed  int
	Duplicates int
	Candidates int
	Scored     int
	Unscored   int
	Ranked     int
	Delivered  []string
	ReportPath string
	// StoreWarning is set when delivery went out but the seen store
	// could not be persisted. The run still counts as a success.
	StoreWarning string
	Duration     time.Duration
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	log := logger.WithRun(runID)
	start := p.now()
	began := time.Now()

	sum := &Summary{RunID: runID}
	defer func() {
		sum.Duration = time.Since(began)
		metrics.Global.RecordRunDuration(sum.Duration)
	}()

	// Fetch
	raw := p.Source.Fetch(ctx)
	sum.Fetched = len(raw)
	metrics.Global.AddItemsFetched(len(raw))
	log.Info("fetched feed items", "count", len(raw))

	if p.RawDir != "" && len(raw) > 0 {
		if path, err := rss.WriteSnapshot(p.RawDir, raw, start); err != nil {
			log.Warn("snapshot failed", "error", err)
		} else {
			log.Debug("snapshot written", "path", path)
		}
	}

	// Recency window
	recent := rss.FilterRecent(raw, p.DaysWindow)

	// Normalize, dropping malformed entries item by item
	normalized := make([]news.NormalizedItem, 0, len(recent))
	for _, item := range recent {
		n, err := news.Normalize(item)
		if err != nil {
			sum.Malformed++
			metrics.Global.IncrementMalformed()
			log.Warn("dropping malformed item", "source", item.Source, "link", item.Link, "error", err)
			continue
		}
		normalized = append(normalized, n)
	}

	// Dedup against history and within the run
	fresh := news.Dedup(normalized, p.Seen)
	sum.Duplicates = len(normalized) - len(fresh)

	if len(fresh) == 0 {
		log.Info("no new items, nothing to deliver")
		return sum, nil
	}

	// Candidate cap, newest first
	candidates := news.CapByRecency(fresh, p.MaxCandidates)
	sum.Candidates = len(candidates)

	if p.Enricher != nil {
		candidates = p.Enricher.EnrichSummaries(ctx, candidates)
	}

	// Score and rank
	scored := p.Scorer.Score(ctx, p.Profile, candidates)
	for _, s := range scored {
		if s.Scored {
			sum.Scored++
		} else {
			sum.Unscored++
		}
	}

	ranked := news.Rank(scored, p.TopN)
	sum.Ranked = len(ranked)
	if len(ranked) == 0 {
		log.Warn("no scored items to rank, skipping delivery")
		return sum, nil
	}

	// Translate titles for the report
	titles := make([]string, len(ranked))
	for i, item := range ranked {
		titles[i] = item.Title
	}
	zhTitles := titles
	if p.Translator != nil {
		zhTitles = p.Translator.Titles(ctx, titles)
	}

	rep := report.Assemble(ranked, zhTitles, start)
	fmt.Print(rep.PreviewTable())

	if p.ReportDir != "" {
		path, err := report.WriteFile(p.ReportDir, rep)
		if err != nil {
			log.Warn("report archive failed", "error", err)
		} else {
			sum.ReportPath = path
		}
	}

	// Deliver. One working channel is enough to count the run as
	// handed off.
	body := rep.Render()
	subject := rep.Subject()
	for _, d := range p.Deliveries {
		if err := d.Deliver(ctx, subject, body); err != nil {
			log.Error("delivery failed", "channel", d.Name(), "error", err)
			continue
		}
		sum.Delivered = append(sum.Delivered, d.Name())
		metrics.Global.IncrementReportsDelivered()
		log.Info("report delivered", "channel", d.Name())
	}
	if len(p.Deliveries) > 0 && len(sum.Delivered) == 0 {
		return sum, fmt.Errorf("all delivery channels failed")
	}

	// Mark delivered items as seen, then persist. The store is only
	// written after the report went out, so a crash before this point
	// repeats items instead of losing them.
	for _, item := range ranked {
		p.Seen.Add(item.Key, start)
	}
	if err := p.Seen.Flush(); err != nil {
		sum.StoreWarning = err.Error()
		log.Warn("seen store flush failed, delivered items may repeat next run", "error", err)
	}

	log.Info("run complete",
		"fetched", sum.Fetched,
		"malformed", sum.Malformed,
		"duplicates", sum.Duplicates,
		"candidates", sum.Candidates,
		"scored", sum.Scored,
		"unscored", sum.Unscored,
		"ranked", sum.Ranked,
		"delivered", sum.Delivered,
	)
	return sum, nil
}
