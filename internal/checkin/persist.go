package checkin

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/meetsign/meetsign/internal/store"
)

const persistQueueSize = 256

// Persister writes committed sign-ins through to the store without
// blocking Attempt. The in-memory ledger stays authoritative: a failed
// write is retried with exponential backoff and, if retries run out,
// logged as a durability warning. The sign-in is never rolled back and
// the client never sees the failure.
type Persister struct {
	store      store.SignInWriter
	queue      chan store.SignInRow
	done       chan struct{}
	maxRetries uint64

	mu      sync.Mutex
	stopped bool
}

// NewPersister starts a persister with a single background worker.
func NewPersister(s store.SignInWriter) *Persister {
	p := &Persister{
		store:      s,
		queue:      make(chan store.SignInRow, persistQueueSize),
		done:       make(chan struct{}),
		maxRetries: 8,
	}
	go p.run()
	return p
}

// Enqueue queues a sign-in row for persistence. Never blocks; the row
// is dropped with a durability warning if the queue is full or the
// persister has been stopped.
func (p *Persister) Enqueue(row store.SignInRow) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		log.Printf("WARNING: sign-in persister stopped, dropping record meeting=%s user=%s", row.MeetingID, row.UserID)
		return
	}

	select {
	case p.queue <- row:
	default:
		log.Printf("WARNING: sign-in persist queue full, dropping record meeting=%s user=%s", row.MeetingID, row.UserID)
	}
}

// Stop drains queued writes and stops the worker. Waits at most until
// ctx is done. Rows enqueued after Stop are dropped. Safe to call more
// than once.
func (p *Persister) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-ctx.Done():
		log.Printf("WARNING: sign-in persister stopped before draining: %v", ctx.Err())
	}
}

func (p *Persister) run() {
	defer close(p.done)
	for row := range p.queue {
		p.persist(row)
	}
}

func (p *Persister) persist(row store.SignInRow) {
	op := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return p.store.SaveSignIn(ctx, row)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 10 * time.Second

	if err := backoff.Retry(op, backoff.WithMaxRetries(bo, p.maxRetries)); err != nil {
		log.Printf("WARNING: giving up persisting sign-in meeting=%s user=%s after retries: %v",
			row.MeetingID, row.UserID, err)
	}
}
