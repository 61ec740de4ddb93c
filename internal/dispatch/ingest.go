package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/syntrixbase/warden/internal/events"
	"github.com/syntrixbase/warden/internal/metrics"
)

// Source is the upstream gateway event stream. Next blocks until an event is
// available. Errors are transient; a terminated stream reports io.EOF and is
// expected to reconnect on the next call.
type Source interface {
	Next(ctx context.Context) (*events.Event, error)
}

// Liveness receives the ingestion health signal.
type Liveness interface {
	MarkIngestionLive()
	MarkIngestionDegraded(failures int, err error)
}

type nopLiveness struct{}

func (nopLiveness) MarkIngestionLive()                   {}
func (nopLiveness) MarkIngestionDegraded(_ int, _ error) {}

// ingest is the single consumer of the source. It preserves source order
// as enqueue order and returns when ctx is done without draining queues.
func (d *Dispatcher) ingest(ctx context.Context) {
	logger := d.logger.With("loop", "ingest")
	logger.Info("ingestion started")

	failures := 0
	for {
		evt, err := d.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("ingestion stopped")
				return
			}

			failures++
			logger.Warn("upstream receive failed", "error", err, "consecutive_failures", failures)
			if failures >= d.opts.FailureThreshold {
				d.liveness.MarkIngestionDegraded(failures, err)
			}

			select {
			case <-ctx.Done():
				logger.Info("ingestion stopped")
				return
			case <-time.After(d.opts.RetryDelay):
			}
			continue
		}

		failures = 0
		d.liveness.MarkIngestionLive()

		if !d.route(ctx, evt) {
			logger.Info("ingestion stopped")
			return
		}
	}
}

// route classifies evt and pushes it onto its queue. It returns false when
// the push was interrupted by shutdown.
func (d *Dispatcher) route(ctx context.Context, evt *events.Event) bool {
	priority := events.Classify(evt.Kind)
	kind := string(evt.Kind)
	if !evt.Kind.IsKnown() {
		kind = metrics.KindUnknown
	}

	if priority == events.PriorityIgnore {
		d.metrics.IncEnqueue(priority.String(), kind, metrics.ResultIgnored)
		return true
	}

	env := &Envelope{
		ID:         uuid.NewString(),
		Event:      evt,
		Priority:   priority,
		EnqueuedAt: time.Now(), // queue wait includes time blocked on a full queue
	}

	q := d.queues[priority]
	start := time.Now()
	err := q.Push(ctx, env)
	blocked := time.Since(start)

	if pressure := d.backpressure.Observe(priority, blocked); pressure == PressureCritical {
		d.logger.Warn("ingestion blocked on full queue",
			"priority", priority.String(),
			"blocked", blocked.String(),
			"capacity", q.Cap(),
		)
	}

	if err != nil {
		d.metrics.IncEnqueue(priority.String(), kind, metrics.ResultCancelled)
		return false
	}

	d.metrics.IncEnqueue(priority.String(), kind, metrics.ResultEnqueued)
	d.metrics.SetQueueDepth(priority.String(), q.Len())
	return true
}
