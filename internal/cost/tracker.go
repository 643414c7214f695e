package cost

import (
	"sync"
	"time"
)

// Tracker accumulates per-day triage spend for the report footer. Counters
// reset when the calendar day changes.
type Tracker struct {
	mu     sync.Mutex
	day    string
	eur    float64
	tokens int64
	deals  int
	now    func() time.Time
}

// Snapshot is the running spend of the current day.
type Snapshot struct {
	EUR    float64
	Tokens int64
	Deals  int
}

// NewTracker creates a Tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Record adds one deal's spend and returns the updated daily totals.
func (t *Tracker) Record(eur float64, tokens int64) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()
	t.eur += eur
	t.tokens += tokens
	t.deals++
	return Snapshot{EUR: t.eur, Tokens: t.tokens, Deals: t.deals}
}

// Today returns the current day's totals without recording anything.
func (t *Tracker) Today() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()
	return Snapshot{EUR: t.eur, Tokens: t.tokens, Deals: t.deals}
}

func (t *Tracker) roll() {
	day := t.now().Format("2006-01-02")
	if day != t.day {
		t.day = day
		t.eur = 0
		t.tokens = 0
		t.deals = 0
	}
}
