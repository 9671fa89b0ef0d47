package learning

import "time"

// DefaultHistoryCap bounds the decision ledger when none is configured.
const DefaultHistoryCap = 1000

// NeutralSuccessRate is reported before any decision has been recorded.
const NeutralSuccessRate = 0.7

// HistoryEntry is one recorded decision outcome.
type HistoryEntry struct {
	At      time.Time `json:"at"`
	Success bool      `json:"success"`
}

// ledger is a fixed-size ring of outcomes. Not safe for concurrent use.
type ledger struct {
	buf  []HistoryEntry
	next int
	full bool
}

func newLedger(capacity int) *ledger {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &ledger{buf: make([]HistoryEntry, capacity)}
}

func (l *ledger) push(e HistoryEntry) {
	l.buf[l.next] = e
	l.next++
	if l.next == len(l.buf) {
		l.next = 0
		l.full = true
	}
}

func (l *ledger) len() int {
	if l.full {
		return len(l.buf)
	}
	return l.next
}

// recent returns up to n entries, oldest first.
func (l *ledger) recent(n int) []HistoryEntry {
	size := l.len()
	if n <= 0 || n > size {
		n = size
	}
	out := make([]HistoryEntry, n)
	start := l.next - n
	if start < 0 {
		start += len(l.buf)
	}
	for i := 0; i < n; i++ {
		out[i] = l.buf[(start+i)%len(l.buf)]
	}
	return out
}
