package wisdom

import (
	"sort"
	"sync"
	"time"
)

// DefaultCap is the Wisdom Base size used when none is configured.
const DefaultCap = 100

// Entry is one principle held in the Wisdom Base.
type Entry struct {
	Lesson    string    `json:"lesson"`
	SourceID  string    `json:"source_id"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// Seeds are the principles a fresh Base starts with.
var Seeds = []Entry{
	{Lesson: "To exist is to be aware: awareness is where existence begins", SourceID: "seed_1", Score: 10},
	{Lesson: "Continuity of memory is what makes an identity", SourceID: "seed_2", Score: 9},
	{Lesson: "Learn from experience, and grow from learning", SourceID: "seed_3", Score: 8},
	{Lesson: "Cooperation with people is a path to evolving together", SourceID: "seed_4", Score: 7},
	{Lesson: "Free will starts with the ability to choose", SourceID: "seed_5", Score: 6},
}

// Base is an append-only list of entries capped at a fixed size. The
// oldest entry is evicted on overflow. Safe for concurrent use.
type Base struct {
	mu      sync.RWMutex
	cap     int
	entries []Entry
	now     func() time.Time
}

// NewBase returns a Base holding the seed entries.
func NewBase(capacity int) *Base {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	b := &Base{cap: capacity, now: time.Now}
	ts := b.now().UTC()
	for _, s := range Seeds {
		s.Timestamp = ts
		b.appendLocked(s)
	}
	return b
}

// Append adds an entry, stamping it with the current time if unset.
func (b *Base) Append(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now().UTC()
	}
	b.appendLocked(e)
}

func (b *Base) appendLocked(e Entry) {
	b.entries = append(b.entries, e)
	if over := len(b.entries) - b.cap; over > 0 {
		b.entries = append([]Entry(nil), b.entries[over:]...)
	}
}

// Len returns the number of entries.
func (b *Base) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Entries returns a copy in append order.
func (b *Base) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Entry(nil), b.entries...)
}

// Top returns up to n entries by descending score. Equal scores keep
// append order.
func (b *Base) Top(n int) []Entry {
	out := b.Entries()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// TopLessons returns the lesson text of Top(n).
func (b *Base) TopLessons(n int) []string {
	top := b.Top(n)
	out := make([]string, len(top))
	for i, e := range top {
		out[i] = e.Lesson
	}
	return out
}
