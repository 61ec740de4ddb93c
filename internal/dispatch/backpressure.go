package dispatch

import (
	"time"

	"github.com/syntrixbase/warden/internal/events"
	"github.com/syntrixbase/warden/internal/metrics"
)

// Pressure grades how long the ingestion loop was blocked on a full queue.
type Pressure int

const (
	// PressureNone means the push did not wait noticeably.
	PressureNone Pressure = iota
	// PressureSlow means the queue was full for a short while.
	PressureSlow
	// PressureCritical means the queue stayed full long enough to stall the gateway.
	PressureCritical
)

func (p Pressure) String() string {
	switch p {
	case PressureNone:
		return "none"
	case PressureSlow:
		return "slow"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// BackpressureMonitor records enqueue block durations and grades them.
type BackpressureMonitor struct {
	metrics           metrics.Sink
	slowThreshold     time.Duration
	criticalThreshold time.Duration
}

// NewBackpressureMonitor creates a monitor. Zero thresholds use 100ms and 1s.
func NewBackpressureMonitor(sink metrics.Sink, slow, critical time.Duration) *BackpressureMonitor {
	if sink == nil {
		sink = metrics.Noop{}
	}
	if slow == 0 {
		slow = 100 * time.Millisecond
	}
	if critical == 0 {
		critical = time.Second
	}
	return &BackpressureMonitor{
		metrics:           sink,
		slowThreshold:     slow,
		criticalThreshold: critical,
	}
}

// Observe records how long a push to the queue of priority p was blocked.
func (b *BackpressureMonitor) Observe(p events.Priority, blocked time.Duration) Pressure {
	b.metrics.ObserveEnqueueBlock(p.String(), blocked)

	switch {
	case blocked < b.slowThreshold:
		return PressureNone
	case blocked < b.criticalThreshold:
		return PressureSlow
	default:
		return PressureCritical
	}
}
