package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/syntrixbase/warden/internal/changelog"
	"github.com/syntrixbase/warden/internal/metrics"
)

// openResult scripts one call to fakeLog.Open.
type openResult struct {
	err    error
	events []*changelog.ChangeEvent
	// endErr is returned after events; nil blocks until ctx is done.
	endErr error
}

type fakeLog struct {
	mu      sync.Mutex
	script  []openResult
	cursors [][]byte
	opened  chan struct{}
}

func newFakeLog(script ...openResult) *fakeLog {
	return &fakeLog{script: script, opened: make(chan struct{}, 64)}
}

func (l *fakeLog) Open(ctx context.Context, collection string, cursor []byte) (changelog.Stream, error) {
	l.mu.Lock()
	l.cursors = append(l.cursors, cursor)
	var res openResult
	if len(l.script) > 0 {
		res = l.script[0]
		l.script = l.script[1:]
	}
	l.mu.Unlock()

	l.opened <- struct{}{}
	if res.err != nil {
		return nil, res.err
	}
	return &fakeStream{events: res.events, endErr: res.endErr}, nil
}

func (l *fakeLog) openCursors() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.cursors...)
}

type fakeStream struct {
	events []*changelog.ChangeEvent
	endErr error
}

func (s *fakeStream) Next(ctx context.Context) (*changelog.ChangeEvent, error) {
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		return ev, nil
	}
	if s.endErr != nil {
		return nil, s.endErr
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *fakeStream) Close(context.Context) error { return nil }

// recordingInvalidator records events and the cursor stored at the time of
// each invalidation.
type recordingInvalidator struct {
	mu       sync.Mutex
	cursors  CursorStore
	events   []*changelog.ChangeEvent
	storedAt [][]byte
	err      error
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, ev *changelog.ChangeEvent) error {
	var stored []byte
	if r.cursors != nil {
		stored, _ = r.cursors.Load(ctx, ev.Collection)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	r.storedAt = append(r.storedAt, stored)
	return r.err
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// failingCursors wraps a store and fails every Save.
type failingCursors struct {
	CursorStore
}

func (failingCursors) Save(context.Context, string, []byte) error {
	return context.DeadlineExceeded
}

type watcherSink struct {
	metrics.Noop
	mu              sync.Mutex
	reconnects      map[string]int
	persistFailures int
	changes         int
}

func (s *watcherSink) IncReconnects(_, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reconnects == nil {
		s.reconnects = make(map[string]int)
	}
	s.reconnects[reason]++
}

func (s *watcherSink) IncCursorPersistFailures(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistFailures++
}

func (s *watcherSink) IncChangeEvents(string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes++
}

type stateRecorder struct {
	mu     sync.Mutex
	states []string
	errs   int
	events int
}

func (r *stateRecorder) RecordWatcherState(_ string, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *stateRecorder) RecordChangeEvent(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events++
}

func (r *stateRecorder) RecordWatcherError(string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs++
}

func (r *stateRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

// waitRecorder replaces the reconnect sleep, cancelling after limit calls.
type waitRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	limit  int
	cancel context.CancelFunc
}

func (r *waitRecorder) wait(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	n := len(r.delays)
	r.mu.Unlock()
	if r.limit > 0 && n >= r.limit {
		r.cancel()
		return context.Canceled
	}
	return ctx.Err()
}

func (r *waitRecorder) snapshot() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func change(coll string, cursor string, doc changelog.Document) *changelog.ChangeEvent {
	return &changelog.ChangeEvent{
		Collection: coll,
		Operation:  changelog.OperationUpdate,
		After:      doc,
		Cursor:     []byte(cursor),
	}
}
