// Package dispatch implements the priority dispatch core: a single ingestion
// loop classifies upstream events into bounded per-priority queues, and one
// worker per priority starts handlers under a per-priority permit bound.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/syntrixbase/warden/internal/events"
	"github.com/syntrixbase/warden/internal/metrics"
)

// ClassOptions sizes one priority class.
type ClassOptions struct {
	// QueueCapacity bounds the number of waiting events.
	QueueCapacity int
	// Permits bounds the number of concurrently running handlers.
	Permits int
}

// Handlers maps each served priority to its business handler.
type Handlers map[events.Priority]Handler

// Options configures a Dispatcher.
type Options struct {
	Classes map[events.Priority]ClassOptions

	// FailureThreshold is the number of consecutive upstream failures after
	// which liveness is reported degraded.
	FailureThreshold int

	// RetryDelay is the pause between upstream receive attempts after a failure.
	RetryDelay time.Duration

	// DrainTimeout bounds how long Stop waits for in-flight handlers.
	// Zero means Stop does not wait for them.
	DrainTimeout time.Duration

	// SlowBlock and CriticalBlock grade enqueue block durations.
	SlowBlock     time.Duration
	CriticalBlock time.Duration

	Metrics  metrics.Sink
	Liveness Liveness
	Logger   *slog.Logger
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Classes: map[events.Priority]ClassOptions{
			events.PriorityHigh:   {QueueCapacity: 256, Permits: 32},
			events.PriorityNormal: {QueueCapacity: 1024, Permits: 16},
			events.PriorityLow:    {QueueCapacity: 2048, Permits: 4},
		},
		FailureThreshold: 5,
		RetryDelay:       time.Second,
		DrainTimeout:     10 * time.Second,
	}
}

// Dispatcher owns the queues, permit pools and workers for one source.
type Dispatcher struct {
	opts         Options
	source       Source
	queues       map[events.Priority]*Queue
	permits      map[events.Priority]*PermitPool
	workers      []*worker
	backpressure *BackpressureMonitor
	metrics      metrics.Sink
	liveness     Liveness
	logger       *slog.Logger

	// wg tracks the ingestion loop and the workers
	wg sync.WaitGroup
	// inFlight tracks detached handlers
	inFlight sync.WaitGroup

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Dispatcher reading from source. Every served priority needs a handler.
func New(source Source, handlers Handlers, opts Options) (*Dispatcher, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}

	defaults := DefaultOptions()
	if opts.Classes == nil {
		opts.Classes = defaults.Classes
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaults.FailureThreshold
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaults.RetryDelay
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.Liveness == nil {
		opts.Liveness = nopLiveness{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := &Dispatcher{
		opts:         opts,
		source:       source,
		queues:       make(map[events.Priority]*Queue, len(events.ServedPriorities)),
		permits:      make(map[events.Priority]*PermitPool, len(events.ServedPriorities)),
		backpressure: NewBackpressureMonitor(opts.Metrics, opts.SlowBlock, opts.CriticalBlock),
		metrics:      opts.Metrics,
		liveness:     opts.Liveness,
		logger:       opts.Logger.With("component", "dispatcher"),
	}

	for _, p := range events.ServedPriorities {
		handler, ok := handlers[p]
		if !ok || handler == nil {
			return nil, fmt.Errorf("no handler for priority %s", p)
		}
		class, ok := opts.Classes[p]
		if !ok {
			class = defaults.Classes[p]
		}

		d.queues[p] = NewQueue(class.QueueCapacity)
		d.permits[p] = NewPermitPool(class.Permits)
		d.workers = append(d.workers, &worker{
			priority: p,
			queue:    d.queues[p],
			permits:  d.permits[p],
			handler:  handler,
			metrics:  d.metrics,
			logger:   d.logger.With("priority", p.String()),
			inFlight: &d.inFlight,
		})
	}

	return d, nil
}

// Start launches the ingestion loop and the workers. Cancelling ctx is the
// shutdown signal; Stop additionally closes queues and pools and waits.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	for _, w := range d.workers {
		d.wg.Add(1)
		go func(w *worker) {
			defer d.wg.Done()
			w.run(ctx)
		}(w)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.ingest(ctx)
	}()

	d.logger.Info("dispatcher started", "workers", len(d.workers))
}

// Stop stops admitting work and waits for the loops to exit. In-flight
// handlers are not interrupted; if DrainTimeout is set Stop waits for them up
// to that timeout or until ctx is done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()

	for _, p := range events.ServedPriorities {
		d.permits[p].Close()
		d.queues[p].Close()
	}

	if err := waitGroup(ctx, &d.wg); err != nil {
		d.logger.Warn("dispatcher stop timed out")
		return err
	}

	if d.opts.DrainTimeout > 0 {
		drainCtx, cancel := context.WithTimeout(ctx, d.opts.DrainTimeout)
		defer cancel()
		if err := waitGroup(drainCtx, &d.inFlight); err != nil {
			d.logger.Warn("in-flight handlers still running after drain timeout", "in_flight", d.InFlight())
			return nil
		}
	}

	d.logger.Info("dispatcher stopped")
	return nil
}

// InFlight returns the number of handlers currently running across all classes.
func (d *Dispatcher) InFlight() int {
	n := 0
	for _, pool := range d.permits {
		n += pool.InFlight()
	}
	return n
}

// QueueLen returns the number of events waiting in the queue for p.
func (d *Dispatcher) QueueLen(p events.Priority) int {
	q, ok := d.queues[p]
	if !ok {
		return 0
	}
	return q.Len()
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
