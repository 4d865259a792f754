package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"campusnews/internal/news"
	"campusnews/internal/store"
)

type fakeSource struct {
	items []news.FeedItem
}

func (f *fakeSource) Fetch(ctx context.Context) []news.FeedItem { return f.items }

// fakeScorer scores by title lookup; titles not in the map stay
// unscored, like a failed batch.
type fakeScorer struct {
	scores map[string]int
}

func (f *fakeScorer) Score(ctx context.Context, profile string, items []news.NormalizedItem) []news.ScoredItem {
	out := make([]news.ScoredItem, len(items))
	for i, item := range items {
		out[i] = news.ScoredItem{NormalizedItem: item}
		if sc, ok := f.scores[item.Title]; ok {
			out[i].Score = sc
			out[i].Scored = true
		}
	}
	return out
}

// fakeTranslator prefixes titles, except those listed in skip which
// come back unchanged, like a failed translation falling back.
type fakeTranslator struct {
	skip map[string]bool
}

func (f *fakeTranslator) Titles(ctx context.Context, titles []string) []string {
	out := make([]string, len(titles))
	for i, t := range titles {
		if f.skip[t] {
			out[i] = t
			continue
		}
		out[i] = "中文|" + t
	}
	return out
}

type fakeDelivery struct {
	name  string
	err   error
	calls int
	body  string
}

func (f *fakeDelivery) Name() string { return f.name }

func (f *fakeDelivery) Deliver(ctx context.Context, subject, body string) error {
	f.calls++
	f.body = body
	return f.err
}

type failFlushStore struct {
	store.SeenStore
}

func (f *failFlushStore) Flush() error { return errors.New("disk full") }

func feedItem(title string) news.FeedItem {
	return news.FeedItem{
		Source:  "The Tech",
		Title:   title,
		Link:    "https://thetech.com/article/" + strings.ReplaceAll(strings.ToLower(title), " ", "-"),
		Fetched: time.Now().UTC(),
	}
}

func keyOf(t *testing.T, item news.FeedItem) string {
	t.Helper()
	n, err := news.Normalize(item)
	if err != nil {
		t.Fatal(err)
	}
	return n.Key
}

func basePipeline(src *fakeSource, seen store.SeenStore, scorer Scorer) *Pipeline {
	return &Pipeline{
		Source:        src,
		Seen:          seen,
		Scorer:        scorer,
		Profile:       "robotics fan",
		MaxCandidates: 80,
		TopN:          10,
	}
}

func TestRunFiltersSeenAndDeliversRest(t *testing.T) {
	itemA := feedItem("Robotics lab opens")
	itemB := feedItem("Tuition rises")
	itemC := feedItem("Dining hall closes")

	seen := store.NewMemory()
	seen.Add(keyOf(t, itemB), time.Now())

	src := &fakeSource{items: []news.FeedItem{itemA, itemB, itemC}}
	scorer := &fakeScorer{scores: map[string]int{
		"Robotics lab opens": 95,
		"Dining hall closes": 40,
	}}
	delivery := &fakeDelivery{name: "email"}

	p := basePipeline(src, seen, scorer)
	p.Deliveries = []Delivery{delivery}

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sum.Fetched != 3 || sum.Duplicates != 1 || sum.Candidates != 2 {
		t.Errorf("counts: fetched=%d duplicates=%d candidates=%d", sum.Fetched, sum.Duplicates, sum.Candidates)
	}
	if delivery.calls != 1 {
		t.Fatalf("expected 1 delivery, got %d", delivery.calls)
	}
	if strings.Contains(delivery.body, "Tuition rises") {
		t.Error("already-seen item leaked into the report")
	}
	if !strings.Contains(delivery.body, "Robotics lab opens") || !strings.Contains(delivery.body, "Dining hall closes") {
		t.Error("fresh items missing from the report")
	}
	// higher score listed first
	if strings.Index(delivery.body, "Robotics lab opens") > strings.Index(delivery.body, "Dining hall closes") {
		t.Error("report entries not in score order")
	}
	for _, item := range []news.FeedItem{itemA, itemC} {
		if !seen.Contains(keyOf(t, item)) {
			t.Errorf("delivered item %q not marked seen", item.Title)
		}
	}
}

func TestRunDeliveryFailureLeavesStoreUntouched(t *testing.T) {
	itemA := feedItem("Robotics lab opens")
	seen := store.NewMemory()
	src := &fakeSource{items: []news.FeedItem{itemA}}
	scorer := &fakeScorer{scores: map[string]int{"Robotics lab opens": 90}}
	delivery := &fakeDelivery{name: "email", err: errors.New("smtp down")}

	p := basePipeline(src, seen, scorer)
	p.Deliveries = []Delivery{delivery}

	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("expected error when every channel fails")
	}
	if seen.Contains(keyOf(t, itemA)) {
		t.Error("item must not be marked seen when delivery failed")
	}
}

func TestRunSecondChannelSavesTheRun(t *testing.T) {
	itemA := feedItem("Robotics lab opens")
	seen := store.NewMemory()
	src := &fakeSource{items: []news.FeedItem{itemA}}
	scorer := &fakeScorer{scores: map[string]int{"Robotics lab opens": 90}}
	email := &fakeDelivery{name: "email", err: errors.New("smtp down")}
	tg := &fakeDelivery{name: "telegram"}

	p := basePipeline(src, seen, scorer)
	p.Deliveries = []Delivery{email, tg}

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("one working channel should be enough: %v", err)
	}
	if len(sum.Delivered) != 1 || sum.Delivered[0] != "telegram" {
		t.Errorf("Delivered = %v", sum.Delivered)
	}
	if !seen.Contains(keyOf(t, itemA)) {
		t.Error("item should be marked seen after the fallback channel delivered")
	}
}

func TestRunNothingNewShortCircuits(t *testing.T) {
	itemA := feedItem("Robotics lab opens")
	seen := store.NewMemory()
	seen.Add(keyOf(t, itemA), time.Now())

	src := &fakeSource{items: []news.FeedItem{itemA}}
	delivery := &fakeDelivery{name: "email"}

	p := basePipeline(src, seen, &fakeScorer{})
	p.Deliveries = []Delivery{delivery}

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("empty day must be a success: %v", err)
	}
	if delivery.calls != 0 {
		t.Error("nothing to say, nothing should be sent")
	}
	if sum.Duplicates != 1 || sum.Candidates != 0 {
		t.Errorf("counts: %+v", sum)
	}
}

func TestRunUnscoredItemsExcludedEverywhere(t *testing.T) {
	scored := feedItem("Robotics lab opens")
	unscored := feedItem("Tuition rises")

	seen := store.NewMemory()
	src := &fakeSource{items: []news.FeedItem{scored, unscored}}
	scorer := &fakeScorer{scores: map[string]int{"Robotics lab opens": 90}}
	delivery := &fakeDelivery{name: "email"}

	p := basePipeline(src, seen, scorer)
	p.Deliveries = []Delivery{delivery}

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Scored != 1 || sum.Unscored != 1 {
		t.Errorf("scored=%d unscored=%d", sum.Scored, sum.Unscored)
	}
	if strings.Contains(delivery.body, "Tuition rises") {
		t.Error("unscored item must not appear in the report")
	}
	if seen.Contains(keyOf(t, unscored)) {
		t.Error("unscored item must not be marked seen, it should get another chance")
	}
}

func TestRunTranslationFallbackKeepsEntry(t *testing.T) {
	itemA := feedItem("Robotics lab opens")
	itemB := feedItem("Tuition rises")

	seen := store.NewMemory()
	src := &fakeSource{items: []news.FeedItem{itemA, itemB}}
	scorer := &fakeScorer{scores: map[string]int{"Robotics lab opens": 90, "Tuition rises": 80}}
	delivery := &fakeDelivery{name: "email"}

	p := basePipeline(src, seen, scorer)
	p.Deliveries = []Delivery{delivery}
	p.Translator = &fakeTranslator{skip: map[string]bool{"Tuition rises": true}}

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(delivery.body, "中文|Robotics lab opens") {
		t.Error("translated title missing")
	}
	if !strings.Contains(delivery.body, "(80 分) Tuition rises") {
		t.Error("failed translation should fall back to the English title, keeping the entry")
	}
}

func TestRunFlushFailureIsWarningNotError(t *testing.T) {
	itemA := feedItem("Robotics lab opens")
	seen := &failFlushStore{SeenStore: store.NewMemory()}
	src := &fakeSource{items: []news.FeedItem{itemA}}
	scorer := &fakeScorer{scores: map[string]int{"Robotics lab opens": 90}}
	delivery := &fakeDelivery{name: "email"}

	p := basePipeline(src, seen, scorer)
	p.Deliveries = []Delivery{delivery}

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("flush failure must not fail the run: %v", err)
	}
	if sum.StoreWarning == "" {
		t.Error("expected a store warning in the summary")
	}
	if delivery.calls != 1 {
		t.Error("report should still have been delivered")
	}
}

func TestRunTopNMarksOnlyDeliveredSeen(t *testing.T) {
	itemA := feedItem("Robotics lab opens")
	itemB := feedItem("Tuition rises")
	itemC := feedItem("Dining hall closes")

	seen := store.NewMemory()
	src := &fakeSource{items: []news.FeedItem{itemA, itemB, itemC}}
	scorer := &fakeScorer{scores: map[string]int{
		"Robotics lab opens": 95,
		"Tuition rises":      90,
		"Dining hall closes": 85,
	}}
	delivery := &fakeDelivery{name: "email"}

	p := basePipeline(src, seen, scorer)
	p.Deliveries = []Delivery{delivery}
	p.TopN = 1

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !seen.Contains(keyOf(t, itemA)) {
		t.Error("top item should be marked seen")
	}
	for _, item := range []news.FeedItem{itemB, itemC} {
		if seen.Contains(keyOf(t, item)) {
			t.Errorf("%q was cut by top_n and must not be marked seen", item.Title)
		}
	}
}

func TestRunWritesReportArchive(t *testing.T) {
	itemA := feedItem("Robotics lab opens")
	seen := store.NewMemory()
	src := &fakeSource{items: []news.FeedItem{itemA}}
	scorer := &fakeScorer{scores: map[string]int{"Robotics lab opens": 90}}

	p := basePipeline(src, seen, scorer)
	p.ReportDir = t.TempDir()
	p.Now = func() time.Time { return time.Date(2026, 8, 25, 7, 30, 0, 0, time.UTC) }

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.ReportPath == "" {
		t.Fatal("expected an archived report path")
	}
	data, err := os.ReadFile(sum.ReportPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "美国大学校园资讯 - 个性化推荐日报") {
		t.Error("archived report missing header")
	}
	if !strings.Contains(string(data), "Robotics lab opens") {
		t.Error("archived report missing entry")
	}
}

func TestRunMalformedItemsCountedAndDropped(t *testing.T) {
	good := feedItem("Robotics lab opens")
	bad := news.FeedItem{Source: "The Tech", Title: "   ", Link: "https://thetech.com/x", Fetched: time.Now()}

	seen := store.NewMemory()
	src := &fakeSource{items: []news.FeedItem{good, bad}}
	scorer := &fakeScorer{scores: map[string]int{"Robotics lab opens": 90}}

	p := basePipeline(src, seen, scorer)

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Malformed != 1 {
		t.Errorf("Malformed = %d", sum.Malformed)
	}
	if sum.Candidates != 1 {
		t.Errorf("Candidates = %d", sum.Candidates)
	}
}
