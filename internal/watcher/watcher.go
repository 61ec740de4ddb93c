// Package watcher follows collection change streams and keeps the shared
// cache coherent with the document store.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/syntrixbase/warden/internal/changelog"
	"github.com/syntrixbase/warden/internal/metrics"
)

// State is the lifecycle state of a watcher.
type State string

const (
	StateStarting     State = "starting"
	StateStreaming    State = "streaming"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
)

// Reconnect reasons recorded in metrics.
const (
	ReasonError         = "error"
	ReasonCursorInvalid = "cursor_invalid"
	ReasonEOF           = "eof"
)

// Invalidator evicts the cache keys affected by a change event.
type Invalidator interface {
	Invalidate(ctx context.Context, ev *changelog.ChangeEvent) error
}

// Reporter receives watcher status for health reporting.
type Reporter interface {
	RecordWatcherState(collection, state string)
	RecordChangeEvent(collection string)
	RecordWatcherError(collection string, err error)
}

type nopReporter struct{}

func (nopReporter) RecordWatcherState(string, string) {}
func (nopReporter) RecordChangeEvent(string)          {}
func (nopReporter) RecordWatcherError(string, error)  {}

// Options configures a Watcher.
type Options struct {
	Collection     string
	Log            changelog.Log
	Invalidator    Invalidator
	Cursors        CursorStore
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Metrics        metrics.Sink
	Reporter       Reporter
	Logger         *slog.Logger
}

// Watcher follows one collection. A cursor is persisted only after the
// event it belongs to has been invalidated, so a crash replays at most the
// events after the last saved cursor.
type Watcher struct {
	collection  string
	log         changelog.Log
	invalidator Invalidator
	cursors     CursorStore
	backoff     *Backoff
	metrics     metrics.Sink
	reporter    Reporter
	logger      *slog.Logger

	mu     sync.RWMutex
	state  State
	cursor []byte

	// wait sleeps between reconnects; replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

// New creates a watcher.
func New(opts Options) (*Watcher, error) {
	if opts.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if opts.Log == nil {
		return nil, fmt.Errorf("change log cannot be nil")
	}
	if opts.Invalidator == nil {
		return nil, fmt.Errorf("invalidator cannot be nil")
	}
	if opts.Cursors == nil {
		return nil, fmt.Errorf("cursor store cannot be nil")
	}

	sink := opts.Metrics
	if sink == nil {
		sink = metrics.Noop{}
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = nopReporter{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = DefaultMaxBackoff
	}

	return &Watcher{
		collection:  opts.Collection,
		log:         opts.Log,
		invalidator: opts.Invalidator,
		cursors:     opts.Cursors,
		backoff:     NewBackoff(opts.InitialBackoff, maxBackoff),
		metrics:     sink,
		reporter:    reporter,
		logger:      logger.With("component", "watcher", "collection", opts.Collection),
		state:       StateStopped,
		wait:        sleepCtx,
	}, nil
}

// Collection returns the watched collection.
func (w *Watcher) Collection() string {
	return w.collection
}

// State returns the current state.
func (w *Watcher) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Cursor returns a copy of the in-memory cursor.
func (w *Watcher) Cursor() []byte {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]byte(nil), w.cursor...)
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	w.reporter.RecordWatcherState(w.collection, string(s))
}

func (w *Watcher) setCursor(cursor []byte) {
	w.mu.Lock()
	w.cursor = cursor
	w.mu.Unlock()
}

func (w *Watcher) currentCursor() []byte {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cursor
}

// Run follows the collection until ctx is cancelled. It never returns
// an error for stream failures; those are retried.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.setState(StateStopped)
	w.setState(StateStarting)

	cursor, err := w.cursors.Load(ctx, w.collection)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Warn("failed to load cursor, starting from now", "error", err)
		cursor = nil
	}
	w.setCursor(cursor)
	if cursor != nil {
		w.logger.Info("resuming from cursor")
	} else {
		w.logger.Info("starting fresh (no cursor)")
	}

	for {
		err := w.follow(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if changelog.IsCursorInvalid(err) && w.currentCursor() != nil {
			w.logger.Warn("cursor rejected, restarting from now; changes in the gap are not invalidated",
				"error", err)
			w.metrics.IncReconnects(w.collection, ReasonCursorInvalid)
			w.reporter.RecordWatcherError(w.collection, err)
			w.setState(StateReconnecting)
			w.setCursor(nil)
			if err := w.cursors.Delete(ctx, w.collection); err != nil && ctx.Err() == nil {
				w.logger.Warn("failed to delete cursor", "error", err)
			}
			continue
		}

		reason := ReasonError
		if err == nil || errors.Is(err, errStreamEnded) {
			reason = ReasonEOF
		}
		delay := w.backoff.Next()
		w.logger.Warn("change stream interrupted, reconnecting", "error", err, "retry_in", delay)
		w.metrics.IncReconnects(w.collection, reason)
		w.reporter.RecordWatcherError(w.collection, err)
		w.setState(StateReconnecting)

		if err := w.wait(ctx, delay); err != nil {
			return nil
		}
	}
}

var errStreamEnded = errors.New("change stream ended")

// follow opens the stream at the current cursor and processes events until
// the stream fails.
func (w *Watcher) follow(ctx context.Context) error {
	stream, err := w.log.Open(ctx, w.collection, w.currentCursor())
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := stream.Close(closeCtx); err != nil {
			w.logger.Debug("failed to close change stream", "error", err)
		}
	}()

	w.backoff.Reset()
	w.setState(StateStreaming)
	w.logger.Info("change stream opened")

	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return errStreamEnded
			}
			return err
		}
		if err := w.apply(ctx, ev); err != nil {
			return err
		}
	}
}

// apply invalidates ev and then advances the cursor.
func (w *Watcher) apply(ctx context.Context, ev *changelog.ChangeEvent) error {
	w.metrics.IncChangeEvents(w.collection, string(ev.Operation))
	w.reporter.RecordChangeEvent(w.collection)

	if err := w.invalidator.Invalidate(ctx, ev); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Eviction is best effort; entity TTLs bound the staleness.
		w.logger.Warn("cache invalidation failed", "operation", ev.Operation, "error", err)
	}

	if len(ev.Cursor) == 0 {
		return nil
	}
	w.setCursor(ev.Cursor)
	if err := w.cursors.Save(ctx, w.collection, ev.Cursor); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Warn("failed to persist cursor", "error", err)
		w.metrics.IncCursorPersistFailures(w.collection)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
