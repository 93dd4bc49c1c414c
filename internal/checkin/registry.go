package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meetsign/meetsign/internal/store"
)

// Options tune session construction.
type Options struct {
	// Threshold is the minimum similarity in [0,1] to accept a match.
	Threshold float64
	// HNSWCutoff is the roster size at which sessions use the HNSW
	// matcher instead of the linear scanner. 0 disables HNSW.
	HNSWCutoff int
}

// Registry is the process-wide map from meeting ID to its check-in
// session. Sessions are created lazily on first connection and evicted
// once the sign-in window has closed and the last connection is
// released. Eviction is advisory cleanup: a fresh session can always be
// rebuilt from the store.
type Registry struct {
	store     store.MeetingStore
	opts      Options
	persister *Persister

	mu       sync.Mutex
	sessions map[string]*registryEntry

	now func() time.Time
}

// registryEntry serializes construction per meeting: the first caller
// builds while later callers wait on ready. The registry lock is only
// held for map bookkeeping, never across store fetches, so unrelated
// meetings build concurrently.
type registryEntry struct {
	ready   chan struct{}
	session *Session
	err     error
}

// NewRegistry creates a registry backed by the given store.
func NewRegistry(s store.MeetingStore, opts Options) *Registry {
	return &Registry{
		store:     s,
		opts:      opts,
		persister: NewPersister(s),
		sessions:  make(map[string]*registryEntry),
		now:       time.Now,
	}
}

// GetOrCreate returns the meeting's session, building it on first use.
// Concurrent first calls for the same meeting serialize on a per-key
// entry; exactly one cache build happens. The returned session has its
// reference count incremented; callers must pair this with Release.
func (r *Registry) GetOrCreate(ctx context.Context, meetingID string) (*Session, error) {
	r.mu.Lock()
	e, ok := r.sessions[meetingID]
	if !ok {
		e = &registryEntry{ready: make(chan struct{})}
		r.sessions[meetingID] = e
		r.mu.Unlock()

		e.session, e.err = r.build(ctx, meetingID)
		if e.err != nil {
			// Failed builds are removed so a later connection can retry.
			r.mu.Lock()
			delete(r.sessions, meetingID)
			r.mu.Unlock()
		}
		close(e.ready)
	} else {
		r.mu.Unlock()
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if e.err != nil {
		return nil, e.err
	}
	e.session.Acquire()
	return e.session, nil
}

func (r *Registry) build(ctx context.Context, meetingID string) (*Session, error) {
	meeting, err := r.store.GetMeeting(ctx, meetingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMeetingNotFound
		}
		return nil, fmt.Errorf("loading meeting %s: %w", meetingID, err)
	}

	templates, err := r.store.GetAttendeeTemplates(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("loading templates for meeting %s: %w", meetingID, err)
	}

	sess, err := NewSession(*meeting, templates, r.opts.Threshold, r.opts.HNSWCutoff, r.persister)
	if err != nil {
		return nil, err
	}
	sess.now = r.now
	return sess, nil
}

// Release drops one connection reference on the meeting's session. When
// the count reaches zero and the sign-in window has passed, the session
// is retired and evicted.
func (r *Registry) Release(meetingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[meetingID]
	if !ok || e.session == nil {
		return
	}

	if e.session.release() <= 0 && r.now().After(e.session.meeting.SignEnd) {
		e.session.retire()
		delete(r.sessions, meetingID)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown drains the sign-in persister.
func (r *Registry) Shutdown(ctx context.Context) {
	r.persister.Stop(ctx)
}
