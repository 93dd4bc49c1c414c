package checkin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meetsign/meetsign/internal/store"
)

// flakyWriter fails the first failures calls to SaveSignIn, then succeeds.
type flakyWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	saved    []store.SignInRow
}

func (w *flakyWriter) SaveSignIn(ctx context.Context, row store.SignInRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.calls <= w.failures {
		return errors.New("transient write failure")
	}
	w.saved = append(w.saved, row)
	return nil
}

func (w *flakyWriter) UpdateSignEvidence(ctx context.Context, meetingID, userID, evidenceRef string) error {
	return nil
}

func (w *flakyWriter) savedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.saved)
}

func TestPersisterRetriesTransientFailures(t *testing.T) {
	w := &flakyWriter{failures: 2}
	p := NewPersister(w)
	p.maxRetries = 5

	p.Enqueue(store.SignInRow{MeetingID: "m1", UserID: "U1", Similarity: 0.9, SignTime: time.Now()})

	waitFor(t, func() bool { return w.savedCount() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Stop(ctx)
}

func TestPersisterStopDrainsQueue(t *testing.T) {
	w := &flakyWriter{}
	p := NewPersister(w)

	for i := 0; i < 20; i++ {
		p.Enqueue(store.SignInRow{MeetingID: "m1", UserID: "U1", SignTime: time.Now()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Stop(ctx)

	if w.savedCount() != 20 {
		t.Errorf("drained %d rows, want 20", w.savedCount())
	}
}

func TestPersisterEnqueueAfterStopIsDropped(t *testing.T) {
	w := &flakyWriter{}
	p := NewPersister(w)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Stop(ctx)
	p.Stop(ctx) // idempotent

	// A late commit, e.g. a kiosk stream racing server shutdown, must
	// not crash the drain.
	p.Enqueue(store.SignInRow{MeetingID: "m1", UserID: "U1", SignTime: time.Now()})

	if w.savedCount() != 0 {
		t.Errorf("saved %d rows after stop, want 0", w.savedCount())
	}
}
