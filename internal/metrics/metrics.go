// Package metrics defines the write-only telemetry sink used by the dispatch
// core and the change-stream watchers.
package metrics

import "time"

// Enqueue outcomes recorded by the ingestion loop.
const (
	ResultEnqueued  = "enqueued"
	ResultIgnored   = "ignored"
	ResultCancelled = "cancelled"
)

// KindUnknown labels events whose kind is outside the known set.
const KindUnknown = "unknown"

// Handler outcomes recorded by the worker pool.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultPanic   = "panic"
)

// Sink defines the interface for dispatch and watcher telemetry.
type Sink interface {
	// Dispatch
	IncEnqueue(priority, kind, result string)
	ObserveEnqueueBlock(priority string, d time.Duration)
	ObserveQueueWait(priority string, d time.Duration)
	SetQueueDepth(priority string, depth int)
	IncHandler(priority, result string)

	// Watcher
	IncChangeEvents(collection, operation string)
	IncReconnects(collection, reason string)
	IncCursorPersistFailures(collection string)
	AddCacheEvictions(collection string, n int)
}

// Noop is a Sink that discards everything.
type Noop struct{}

func (Noop) IncEnqueue(priority, kind, result string)             {}
func (Noop) ObserveEnqueueBlock(priority string, d time.Duration) {}
func (Noop) ObserveQueueWait(priority string, d time.Duration)    {}
func (Noop) SetQueueDepth(priority string, depth int)             {}
func (Noop) IncHandler(priority, result string)                   {}
func (Noop) IncChangeEvents(collection, operation string)         {}
func (Noop) IncReconnects(collection, reason string)              {}
func (Noop) IncCursorPersistFailures(collection string)           {}
func (Noop) AddCacheEvictions(collection string, n int)           {}
