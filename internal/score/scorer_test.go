package score

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"campusnews/internal/news"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, batch []Candidate) (map[int]int, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) ScoreBatch(ctx context.Context, profile string, batch []Candidate) (map[int]int, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.fn(call, batch)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func makeItems(n int) []news.NormalizedItem {
	items := make([]news.NormalizedItem, n)
	for i := range items {
		items[i] = news.NormalizedItem{
			FeedItem: news.FeedItem{Source: "src", Title: fmt.Sprintf("item-%d", i)},
			Key:      fmt.Sprintf("key-%d", i),
		}
	}
	return items
}

func fullScores(batch []Candidate, base int) map[int]int {
	m := make(map[int]int, len(batch))
	for i := range batch {
		m[i+1] = base
	}
	return m
}

func TestScoreHappyPath(t *testing.T) {
	provider := &fakeProvider{fn: func(call int, batch []Candidate) (map[int]int, error) {
		return fullScores(batch, 60), nil
	}}
	s := New(provider, Config{BatchSize: 3, MaxWorkers: 2})

	items := makeItems(7)
	got := s.Score(context.Background(), "profile", items)

	if len(got) != 7 {
		t.Fatalf("expected 7 results, got %d", len(got))
	}
	for i, r := range got {
		if r.Key != items[i].Key {
			t.Errorf("result %d out of input order", i)
		}
		if !r.Scored || r.Score != 60 {
			t.Errorf("item %d: scored=%v score=%d", i, r.Scored, r.Score)
		}
	}
}

func TestScoreClampsOutOfRange(t *testing.T) {
	provider := &fakeProvider{fn: func(call int, batch []Candidate) (map[int]int, error) {
		return map[int]int{1: 95, 2: 40, 3: 101}, nil
	}}
	s := New(provider, Config{BatchSize: 3, MaxWorkers: 1})

	got := s.Score(context.Background(), "profile", makeItems(3))

	want := []int{95, 40, 100}
	for i, w := range want {
		if !got[i].Scored {
			t.Fatalf("item %d should be scored", i)
		}
		if got[i].Score != w {
			t.Errorf("item %d: got %d, want %d", i, got[i].Score, w)
		}
	}
}

func TestScoreClampsNegative(t *testing.T) {
	provider := &fakeProvider{fn: func(call int, batch []Candidate) (map[int]int, error) {
		return map[int]int{1: -5}, nil
	}}
	s := New(provider, Config{BatchSize: 10, MaxWorkers: 1})

	got := s.Score(context.Background(), "profile", makeItems(1))
	if !got[0].Scored || got[0].Score != 0 {
		t.Errorf("negative score should clamp to 0, got scored=%v score=%d", got[0].Scored, got[0].Score)
	}
}

func TestScoreFailedBatchLeavesItemsUnscored(t *testing.T) {
	provider := &fakeProvider{fn: func(call int, batch []Candidate) (map[int]int, error) {
		if strings.HasPrefix(batch[0].Title, "item-2") {
			return nil, errors.New("service exploded")
		}
		return fullScores(batch, 80), nil
	}}
	s := New(provider, Config{BatchSize: 2, MaxWorkers: 1})

	// Batches: [0,1] [2,3] [4]. Middle batch fails both attempts.
	got := s.Score(context.Background(), "profile", makeItems(5))

	for _, i := range []int{0, 1, 4} {
		if !got[i].Scored {
			t.Errorf("item %d should be scored", i)
		}
	}
	for _, i := range []int{2, 3} {
		if got[i].Scored {
			t.Errorf("item %d belongs to the failed batch and must stay unscored", i)
		}
	}
}

func TestScoreSingleReattemptRecovers(t *testing.T) {
	provider := &fakeProvider{fn: func(call int, batch []Candidate) (map[int]int, error) {
		if call == 1 {
			return nil, errors.New("transient")
		}
		return fullScores(batch, 50), nil
	}}
	s := New(provider, Config{BatchSize: 10, MaxWorkers: 1})

	got := s.Score(context.Background(), "profile", makeItems(2))

	if provider.callCount() != 2 {
		t.Errorf("expected exactly 2 provider calls, got %d", provider.callCount())
	}
	for i, r := range got {
		if !r.Scored {
			t.Errorf("item %d should be scored after the re-attempt", i)
		}
	}
}

func TestScoreNoThirdAttempt(t *testing.T) {
	provider := &fakeProvider{fn: func(call int, batch []Candidate) (map[int]int, error) {
		return nil, errors.New("permanently down")
	}}
	s := New(provider, Config{BatchSize: 10, MaxWorkers: 1})

	got := s.Score(context.Background(), "profile", makeItems(2))

	if provider.callCount() != 2 {
		t.Errorf("expected 2 attempts (one re-attempt), got %d", provider.callCount())
	}
	for i, r := range got {
		if r.Scored {
			t.Errorf("item %d must be unscored", i)
		}
	}
}

func TestScorePartialCoverageFailsBatch(t *testing.T) {
	provider := &fakeProvider{fn: func(call int, batch []Candidate) (map[int]int, error) {
		return map[int]int{1: 90}, nil // second item missing
	}}
	s := New(provider, Config{BatchSize: 2, MaxWorkers: 1})

	got := s.Score(context.Background(), "profile", makeItems(2))

	for i, r := range got {
		if r.Scored {
			t.Errorf("item %d: partial coverage must fail the whole batch", i)
		}
	}
}

func TestScoreTimedOutBatchUnscored(t *testing.T) {
	provider := &fakeProvider{fn: func(call int, batch []Candidate) (map[int]int, error) {
		if strings.HasPrefix(batch[0].Title, "item-0") {
			time.Sleep(50 * time.Millisecond)
			return nil, context.DeadlineExceeded
		}
		return fullScores(batch, 70), nil
	}}
	s := New(provider, Config{BatchSize: 2, MaxWorkers: 1, RequestTimeout: 5 * time.Millisecond})

	// Batches: {item-0,item-1} times out, {item-2,item-3} succeeds.
	got := s.Score(context.Background(), "profile", makeItems(4))

	if got[0].Scored || got[1].Scored {
		t.Error("timed-out batch items must be unscored")
	}
	if !got[2].Scored || !got[3].Scored {
		t.Error("healthy batch must still be scored")
	}
}

func TestScoreParallelBatchesMergeCompletely(t *testing.T) {
	provider := &fakeProvider{fn: func(call int, batch []Candidate) (map[int]int, error) {
		return fullScores(batch, 42), nil
	}}
	s := New(provider, Config{BatchSize: 1, MaxWorkers: 8})

	got := s.Score(context.Background(), "profile", makeItems(40))

	for i, r := range got {
		if !r.Scored || r.Score != 42 {
			t.Fatalf("item %d lost in parallel merge: scored=%v score=%d", i, r.Scored, r.Score)
		}
	}
}

func TestScoreEmptyInput(t *testing.T) {
	provider := &fakeProvider{fn: func(call int, batch []Candidate) (map[int]int, error) {
		t.Error("provider must not be called for empty input")
		return nil, nil
	}}
	s := New(provider, Config{})

	got := s.Score(context.Background(), "profile", nil)
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}
