package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/syntrixbase/warden/internal/events"
	"github.com/syntrixbase/warden/internal/metrics"
)

type sourceItem struct {
	evt *events.Event
	err error
}

// chanSource hands out whatever the test sends on items.
type chanSource struct {
	items chan sourceItem
}

func newChanSource() *chanSource {
	return &chanSource{items: make(chan sourceItem)}
}

func (s *chanSource) Next(ctx context.Context) (*events.Event, error) {
	select {
	case it := <-s.items:
		return it.evt, it.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *chanSource) send(ctx context.Context, evt *events.Event) bool {
	select {
	case s.items <- sourceItem{evt: evt}:
		return true
	case <-ctx.Done():
		return false
	}
}

// errSource always fails.
type errSource struct {
	err error
}

func (s errSource) Next(ctx context.Context) (*events.Event, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, s.err
}

type fakeLiveness struct {
	mu       sync.Mutex
	degraded bool
	failures int
	live     int
}

func (l *fakeLiveness) MarkIngestionLive() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.degraded = false
	l.live++
}

func (l *fakeLiveness) MarkIngestionDegraded(failures int, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.degraded = true
	l.failures = failures
}

func (l *fakeLiveness) isDegraded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.degraded
}

// recordingSink counts the metrics the tests care about.
type recordingSink struct {
	metrics.Noop
	mu       sync.Mutex
	enqueues map[string]int
	blocks   map[string]int
	handlers map[string]int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		enqueues: make(map[string]int),
		blocks:   make(map[string]int),
		handlers: make(map[string]int),
	}
}

func (s *recordingSink) IncEnqueue(priority, kind, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueues[priority+"/"+kind+"/"+result]++
}

func (s *recordingSink) ObserveEnqueueBlock(priority string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[priority]++
}

func (s *recordingSink) IncHandler(priority, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[priority+"/"+result]++
}

func (s *recordingSink) enqueueCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueues[key]
}

func (s *recordingSink) blockObservations(priority string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks[priority]
}

func (s *recordingSink) handlerCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[key]
}

// recorder collects handler invocations and tracks peak concurrency.
type recorder struct {
	mu      sync.Mutex
	order   []string
	running int
	peak    int
	gate    chan struct{}
}

func newRecorder(gated bool) *recorder {
	r := &recorder{}
	if gated {
		r.gate = make(chan struct{})
	}
	return r
}

func (r *recorder) handler(ctx context.Context, evt *events.Event) error {
	r.mu.Lock()
	r.order = append(r.order, evt.ID)
	r.running++
	if r.running > r.peak {
		r.peak = r.running
	}
	r.mu.Unlock()

	if r.gate != nil {
		<-r.gate
	} else {
		time.Sleep(time.Millisecond)
	}

	r.mu.Lock()
	r.running--
	r.mu.Unlock()
	return nil
}

func (r *recorder) started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func (r *recorder) stats() (running, peak int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running, r.peak
}

func evt(kind events.Kind, id string) *events.Event {
	return &events.Event{Kind: kind, ID: id, ReceivedAt: time.Now()}
}

func noopHandler(context.Context, *events.Event) error { return nil }
