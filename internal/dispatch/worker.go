package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/syntrixbase/warden/internal/events"
	"github.com/syntrixbase/warden/internal/metrics"
)

// Handler processes one event. Handlers own their failures: the pool logs and
// counts a returned error but never retries.
type Handler func(ctx context.Context, evt *events.Event) error

// worker pops envelopes for one priority class and starts a detached handler
// for each once a permit is available.
type worker struct {
	priority events.Priority
	queue    *Queue
	permits  *PermitPool
	handler  Handler
	metrics  metrics.Sink
	logger   *slog.Logger

	// inFlight tracks detached handlers for the optional drain on shutdown
	inFlight *sync.WaitGroup
}

func (w *worker) run(ctx context.Context) {
	w.logger.Info("worker started", "queue_capacity", w.queue.Cap(), "permits", w.permits.Size())

	for {
		env, err := w.queue.Pop(ctx)
		if err != nil {
			w.logExit("queue", err)
			return
		}

		w.metrics.ObserveQueueWait(w.priority.String(), time.Since(env.EnqueuedAt))
		w.metrics.SetQueueDepth(w.priority.String(), w.queue.Len())

		permit, err := w.permits.Acquire(ctx)
		if err != nil {
			w.logger.Warn("dropping popped event on shutdown", "envelope", env.ID, "kind", env.Event.Kind)
			w.logExit("permit pool", err)
			return
		}

		w.inFlight.Add(1)
		go w.execute(context.WithoutCancel(ctx), env, permit)
	}
}

// execute runs the handler in its own goroutine and holds permit until it returns.
func (w *worker) execute(ctx context.Context, env *Envelope, permit *Permit) {
	defer w.inFlight.Done()
	defer permit.Release()

	result := metrics.ResultSuccess
	defer func() {
		if r := recover(); r != nil {
			result = metrics.ResultPanic
			w.logger.Error("handler panicked", "envelope", env.ID, "kind", env.Event.Kind, "panic", fmt.Sprint(r))
		}
		w.metrics.IncHandler(w.priority.String(), result)
	}()

	if err := w.handler(ctx, env.Event); err != nil {
		result = metrics.ResultFailure
		w.logger.Error("handler failed", "envelope", env.ID, "kind", env.Event.Kind, "error", err)
	}
}

func (w *worker) logExit(what string, err error) {
	switch {
	case errors.Is(err, ErrQueueClosed), errors.Is(err, ErrPoolClosed),
		errors.Is(err, context.Canceled):
		w.logger.Info("worker stopped", "reason", what+" closed")
	default:
		w.logger.Warn("worker stopped", "reason", what, "error", err)
	}
}
