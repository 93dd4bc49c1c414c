// Package checkin implements the real-time face check-in core: the
// per-meeting session with its template cache and sign-in ledger, the
// similarity matchers, the process-wide session registry and the async
// sign-in persister.
package checkin

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/meetsign/meetsign/internal/store"
)

// State is the lifecycle phase of a check-in session. It is a pure
// function of wall-clock time against the sign-in window, except
// StateRetired which is set by the registry on eviction.
type State int

const (
	StateCreated State = iota // window not yet open
	StateOpen                 // within [signStart, signEnd]
	StateClosed               // past signEnd
	StateRetired              // evicted, no active connections
)

// Outcome classifies a match decision.
type Outcome int

const (
	OutcomeMatched Outcome = iota
	OutcomeNoFaceDetected
	OutcomeNoMatch
)

// Decision is the per-query result of an Attempt. Never persisted.
type Decision struct {
	Outcome  Outcome
	UserID   string // set on Matched
	UserName string // set on Matched
	DeptName string // set on Matched

	// Score is the best similarity seen on NoMatch and the committed
	// record's similarity on Matched. When AlreadySigned is set this is
	// the score of the original sign-in, not the current query's.
	Score float64

	AlreadySigned bool // Matched an attendee who had already signed
	SignTime      time.Time
}

// Session owns one meeting's template cache and sign-in ledger. Exactly
// one session exists per meeting at a time, enforced by the Registry.
type Session struct {
	meeting   store.Meeting
	cache     *TemplateCache
	matcher   Matcher
	ledger    *Ledger
	threshold float64
	persister *Persister

	refs    atomic.Int32
	retired atomic.Bool

	now func() time.Time // injectable clock for tests
}

// NewSession builds a session from a meeting and its roster templates.
// The similarity threshold and matcher choice are resolved here, once,
// and stay fixed for the session's lifetime.
func NewSession(meeting store.Meeting, templates []store.AttendeeTemplate, threshold float64, hnswCutoff int, persister *Persister) (*Session, error) {
	cache := NewTemplateCache(templates)
	if cache.Len() == 0 {
		return nil, ErrNoAttendees
	}

	userIDs := make([]string, 0, cache.Len())
	for _, t := range cache.All() {
		userIDs = append(userIDs, t.UserID)
	}

	return &Session{
		meeting:   meeting,
		cache:     cache,
		matcher:   NewMatcher(cache, hnswCutoff),
		ledger:    NewLedger(userIDs),
		threshold: threshold,
		persister: persister,
		now:       time.Now,
	}, nil
}

// Meeting returns the meeting this session serves.
func (s *Session) Meeting() store.Meeting {
	return s.meeting
}

// Cache returns the session's read-only template cache.
func (s *Session) Cache() *TemplateCache {
	return s.cache
}

// Ledger returns the session's sign-in ledger.
func (s *Session) Ledger() *Ledger {
	return s.ledger
}

// State returns the session state at the given instant. Both window
// boundaries are inclusive.
func (s *Session) State(at time.Time) State {
	if s.retired.Load() {
		return StateRetired
	}
	if at.Before(s.meeting.SignStart) {
		return StateCreated
	}
	if at.After(s.meeting.SignEnd) {
		return StateClosed
	}
	return StateOpen
}

// Attempt runs one check-in decision for a query embedding. Valid only
// while the sign-in window is open; the window is evaluated against
// wall-clock time at call time. The ledger's compare-and-set is the only
// synchronization involved, so attempts for different attendees never
// contend.
func (s *Session) Attempt(ctx context.Context, query []float32) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	now := s.now()
	switch s.State(now) {
	case StateCreated:
		return Decision{}, &WindowError{State: StateCreated, Boundary: s.meeting.SignStart}
	case StateClosed, StateRetired:
		return Decision{}, &WindowError{State: StateClosed, Boundary: s.meeting.SignEnd}
	}

	if len(query) == 0 {
		return Decision{Outcome: OutcomeNoFaceDetected}, nil
	}

	bestID, bestScore := s.matcher.FindBest(query)
	if bestID == "" || bestScore < s.threshold {
		return Decision{Outcome: OutcomeNoMatch, Score: bestScore}, nil
	}

	tpl := s.cache.Get(bestID)
	rec, committed, _ := s.ledger.TryMark(bestID, bestScore, now)

	decision := Decision{
		Outcome:       OutcomeMatched,
		UserID:        bestID,
		UserName:      tpl.UserName,
		DeptName:      tpl.DeptName,
		Score:         rec.Score,
		AlreadySigned: !committed,
		SignTime:      rec.SignedAt,
	}

	if committed {
		s.persister.Enqueue(store.SignInRow{
			MeetingID:  s.meeting.ID,
			UserID:     bestID,
			Similarity: rec.Score,
			SignTime:   rec.SignedAt,
		})
	}

	return decision, nil
}

// Acquire increments the session's connection reference count.
func (s *Session) Acquire() {
	s.refs.Add(1)
}

// release decrements the reference count and returns the new value.
func (s *Session) release() int32 {
	return s.refs.Add(-1)
}

// Refs returns the current number of active connections.
func (s *Session) Refs() int32 {
	return s.refs.Load()
}

// retire marks the session retired. Called by the registry on eviction.
func (s *Session) retire() {
	s.retired.Store(true)
}
