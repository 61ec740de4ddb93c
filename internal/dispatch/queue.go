package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/syntrixbase/warden/internal/events"
)

var (
	// ErrQueueClosed is returned by Push and Pop once the queue is closed.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrPoolClosed is returned by Acquire once the permit pool is closed.
	ErrPoolClosed = errors.New("permit pool is closed")
)

// Envelope carries an event from ingestion to exactly one worker.
type Envelope struct {
	ID         string
	Event      *events.Event
	Priority   events.Priority
	EnqueuedAt time.Time
}

// Queue is a bounded FIFO of envelopes. Push blocks while the queue is full;
// it never drops or reorders.
type Queue struct {
	ch        chan *Envelope
	closed    chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue holding at most capacity envelopes.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:     make(chan *Envelope, capacity),
		closed: make(chan struct{}),
	}
}

// Push appends env, blocking while the queue is full.
func (q *Queue) Push(ctx context.Context, env *Envelope) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.ch <- env:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop removes the oldest envelope, blocking while the queue is empty. After
// Close, envelopes still buffered are returned before ErrQueueClosed.
func (q *Queue) Pop(ctx context.Context) (*Envelope, error) {
	select {
	case env := <-q.ch:
		return env, nil
	case <-q.closed:
		select {
		case env := <-q.ch:
			return env, nil
		default:
			return nil, ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close marks the queue closed. Blocked producers and consumers are released.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}

// Len returns the number of buffered envelopes.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}
