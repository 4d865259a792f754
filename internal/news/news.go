package news

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// FeedItem is one raw entry as delivered by a feed. Only title and link
// matter for identity; everything else is along for the ride.
type FeedItem struct {
	FeedID    string
	Source    string // feed display name, e.g. "The Daily Pennsylvanian"
	Tags      []string
	Title     string
	Link      string
	Summary   string
	Published *time.Time
	Fetched   time.Time
}

// NormalizedItem is a FeedItem with its stable identity key attached.
type NormalizedItem struct {
	FeedItem
	Key string
}

// ScoredItem carries the interest score assigned by the model. Scored is
// false when the item sat in a batch that failed; such items never reach
// the ranked report.
type ScoredItem struct {
	NormalizedItem
	Score  int
	Scored bool
}

// ErrMalformedItem marks feed entries that cannot be identified: empty
// title, empty link, or a link that does not parse as an absolute URL.
var ErrMalformedItem = errors.New("malformed feed item")

// trackingParams are query parameters that vary per syndication channel
// without changing the article. Stripping them keeps the identity key
// stable when the same story arrives decorated differently.
var trackingParams = map[string]bool{
	"gclid":  true,
	"fbclid": true,
	"igshid": true,
	"mc_cid": true,
	"mc_eid": true,
	"ref":    true,
	"source": true,
}

// Normalize validates a raw item and computes its identity key.
func Normalize(item FeedItem) (NormalizedItem, error) {
	title := strings.TrimSpace(item.Title)
	link := strings.TrimSpace(item.Link)

	if title == "" {
		return NormalizedItem{}, fmt.Errorf("%w: empty title (link=%s)", ErrMalformedItem, link)
	}
	if link == "" {
		return NormalizedItem{}, fmt.Errorf("%w: empty link (title=%s)", ErrMalformedItem, title)
	}

	canonical, err := CanonicalURL(link)
	if err != nil {
		return NormalizedItem{}, fmt.Errorf("%w: %v", ErrMalformedItem, err)
	}

	item.Title = title
	item.Link = link
	return NormalizedItem{
		FeedItem: item,
		Key:      IdentityKey(item.Source, canonical),
	}, nil
}

// CanonicalURL rewrites a link into its canonical form: lowercase scheme
// and host, no www prefix, no fragment, tracking parameters removed,
// remaining query re-encoded with sorted keys, no trailing slash.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("unparseable link %q: %v", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("link %q is not an absolute URL", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""

	q := u.Query()
	for name := range q {
		if trackingParams[name] || strings.HasPrefix(name, "utm_") {
			q.Del(name)
		}
	}
	// Encode sorts keys, so parameter order on the wire never matters.
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}

// IdentityKey hashes source name and canonical URL into a short stable
// key. Title is deliberately left out: editors rewrite headlines after
// publication and that must not resurrect an already-seen story.
func IdentityKey(source, canonicalURL string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(source)) + "|" + canonicalURL))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// CapByRecency keeps the newest max items. Items without a publish date
// sort by fetch time. Ties stay in discovery order, so the result is a
// deterministic candidate list for scoring.
func CapByRecency(items []NormalizedItem, max int) []NormalizedItem {
	if max <= 0 || len(items) <= max {
		return items
	}

	capped := make([]NormalizedItem, len(items))
	copy(capped, items)

	sort.SliceStable(capped, func(i, j int) bool {
		return itemTime(capped[i]).After(itemTime(capped[j]))
	})
	return capped[:max]
}

func itemTime(item NormalizedItem) time.Time {
	if item.Published != nil {
		return *item.Published
	}
	return item.Fetched
}

// Rank orders scored items for the report: descending score, ties kept in
// discovery order, truncated to topN. Unscored items are dropped first; a
// failed batch means "not evaluated", not "score zero".
func Rank(items []ScoredItem, topN int) []ScoredItem {
	ranked := make([]ScoredItem, 0, len(items))
	for _, it := range items {
		if it.Scored {
			ranked = append(ranked, it)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if topN < len(ranked) {
		ranked = ranked[:topN]
	}
	return ranked
}
