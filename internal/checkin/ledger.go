package checkin

import (
	"sync"
	"time"
)

// Record is a committed sign-in as stored in the ledger.
type Record struct {
	UserID   string
	Score    float64
	SignedAt time.Time
}

// ledgerEntry guards one attendee's sign-in state. Each entry has its
// own lock, so concurrent marks of unrelated attendees never contend.
type ledgerEntry struct {
	mu     sync.Mutex
	signed bool
	rec    Record
}

// Ledger tracks per-attendee sign-in state for one meeting. Entries are
// pre-allocated for the whole roster at construction; the entry map is
// never mutated afterwards, so lookups need no locking. Signed is
// terminal: there is no way to unmark, which keeps the set of signed
// attendees monotonically non-decreasing for the session's lifetime.
type Ledger struct {
	entries map[string]*ledgerEntry
}

// NewLedger creates a ledger with a NotSigned entry per user ID.
func NewLedger(userIDs []string) *Ledger {
	entries := make(map[string]*ledgerEntry, len(userIDs))
	for _, id := range userIDs {
		entries[id] = &ledgerEntry{}
	}
	return &Ledger{entries: entries}
}

// TryMark transitions the attendee from NotSigned to Signed. Exactly one
// caller observes committed=true for a given attendee, no matter how
// many race; the rest get committed=false and the winner's record.
// Unknown user IDs return ok=false.
func (l *Ledger) TryMark(userID string, score float64, at time.Time) (rec Record, committed, ok bool) {
	e, found := l.entries[userID]
	if !found {
		return Record{}, false, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.signed {
		return e.rec, false, true
	}
	e.signed = true
	e.rec = Record{UserID: userID, Score: score, SignedAt: at}
	return e.rec, true, true
}

// Get returns the attendee's record and whether they have signed.
func (l *Ledger) Get(userID string) (Record, bool) {
	e, found := l.entries[userID]
	if !found {
		return Record{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, e.signed
}

// SignedCount returns how many attendees have signed in.
func (l *Ledger) SignedCount() int {
	n := 0
	for _, e := range l.entries {
		e.mu.Lock()
		if e.signed {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// Size returns the roster size the ledger was built for.
func (l *Ledger) Size() int {
	return len(l.entries)
}
