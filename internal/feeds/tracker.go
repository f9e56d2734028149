package feeds

import (
	"sort"
	"sync"
	"time"

	"github.com/PhucNguyen204/rubricfeed/pkg/rubric"
)

// Activity describes a feed and what the router has seen from it
type Activity struct {
	Feed     string    `json:"feed"`
	URL      string    `json:"url,omitempty"`
	Usertags []string  `json:"usertags,omitempty"`
	Disabled bool      `json:"disabled,omitempty"`
	Entries  int64     `json:"entries"`
	Included int64     `json:"included"` // rubric inclusions across all entries
	LastSeen time.Time `json:"last_seen"`
}

// Tracker keeps per-feed counters in-memory with concurrent access protection
type Tracker struct {
	mu        sync.RWMutex
	items     map[string]Activity
	retention time.Duration // 0 keeps every feed
}

func New(retention time.Duration) *Tracker {
	return &Tracker{items: make(map[string]Activity), retention: retention}
}

func (t *Tracker) SetRetention(d time.Duration) {
	t.mu.Lock()
	t.retention = d
	t.mu.Unlock()
}

// Observe records one routed entry of feed; entries without a feed are ignored
func (t *Tracker) Observe(feed string, included int, at time.Time) {
	if feed == "" {
		return
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	t.mu.Lock()
	a := t.items[feed]
	a.Feed = feed
	a.Entries++
	a.Included += int64(included)
	if at.After(a.LastSeen) {
		a.LastSeen = at
	}
	t.items[feed] = a
	t.mu.Unlock()
}

func (t *Tracker) Get(feed string) (Activity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.items[feed]
	return a, ok
}

// List merges configured feeds with observed activity, newest first.
// Configured feeds never seen sort last by name. limit <= 0 returns all.
func (t *Tracker) List(configured map[string]rubric.FeedSpec, limit int) []Activity {
	t.mu.RLock()
	merged := make(map[string]Activity, len(t.items)+len(configured))
	for k, v := range t.items {
		merged[k] = v
	}
	t.mu.RUnlock()
	for name, spec := range configured {
		a := merged[name]
		a.Feed = name
		a.URL = spec.URL
		a.Usertags = spec.Usertags
		a.Disabled = spec.Disable
		merged[name] = a
	}

	out := make([]Activity, 0, len(merged))
	for _, v := range merged {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].Feed < out[j].Feed
	})
	if limit > 0 && len(out) > limit {
		return out[:limit]
	}
	return out
}

// Expire drops observed feeds whose last entry is older than the retention window
// ending at now. Configured feeds are unaffected since List re-adds them.
func (t *Tracker) Expire(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.retention <= 0 {
		return 0
	}
	oldest := now.Add(-t.retention)
	n := 0
	for feed, a := range t.items {
		if a.LastSeen.Before(oldest) {
			delete(t.items, feed)
			n++
		}
	}
	return n
}
