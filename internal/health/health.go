// Package health tracks ingestion liveness and per-collection watcher state and
// serves them as a JSON report.
package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of the process.
type Status string

const (
	// StatusOK indicates everything is running normally.
	StatusOK Status = "ok"

	// StatusDegraded indicates the process is running but with issues.
	StatusDegraded Status = "degraded"
)

// IngestionHealth is the liveness state of the gateway ingestion loop.
type IngestionHealth struct {
	Status              Status     `json:"status"`
	LastEvent           *time.Time `json:"lastEvent,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
}

// WatcherHealth is the state of a single collection watcher.
type WatcherHealth struct {
	Collection  string     `json:"collection"`
	State       string     `json:"state"`
	LastEvent   *time.Time `json:"lastEvent,omitempty"`
	EventsTotal int64      `json:"eventsTotal"`
	Errors      int        `json:"errors"`
	LastError   string     `json:"lastError,omitempty"`
}

// Report is the full health report.
type Report struct {
	Status    Status          `json:"status"`
	Uptime    string          `json:"uptime"`
	StartedAt time.Time       `json:"startedAt"`
	Ingestion IngestionHealth `json:"ingestion"`
	Watchers  []WatcherHealth `json:"watchers"`
}

// Checker collects health signals. It is safe for concurrent use.
type Checker struct {
	startedAt time.Time
	logger    *slog.Logger

	// mu protects health state
	mu        sync.RWMutex
	ingestion IngestionHealth
	watchers  map[string]*WatcherHealth
}

// NewChecker creates a new health checker.
func NewChecker(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		startedAt: time.Now(),
		logger:    logger.With("component", "health"),
		ingestion: IngestionHealth{Status: StatusOK},
		watchers:  make(map[string]*WatcherHealth),
	}
}

// MarkIngestionLive records a successful receive from the upstream source.
func (h *Checker) MarkIngestionLive() {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	h.ingestion.LastEvent = &now
	h.ingestion.ConsecutiveFailures = 0
	h.ingestion.LastError = ""
	if h.ingestion.Status != StatusOK {
		h.logger.Info("ingestion recovered")
	}
	h.ingestion.Status = StatusOK
}

// MarkIngestionDegraded flips the liveness flag after sustained upstream failures.
func (h *Checker) MarkIngestionDegraded(failures int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ingestion.Status != StatusDegraded {
		h.logger.Warn("ingestion degraded", "failures", failures, "error", err)
	}
	h.ingestion.Status = StatusDegraded
	h.ingestion.ConsecutiveFailures = failures
	if err != nil {
		h.ingestion.LastError = err.Error()
	}
}

// Live reports whether ingestion is healthy.
func (h *Checker) Live() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ingestion.Status == StatusOK
}

// RecordWatcherState records the current state machine state of a watcher.
func (h *Checker) RecordWatcherState(collection, state string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.watcher(collection).State = state
}

// RecordChangeEvent records a processed change event.
func (h *Checker) RecordChangeEvent(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	wh := h.watcher(collection)
	now := time.Now()
	wh.LastEvent = &now
	wh.EventsTotal++
}

// RecordWatcherError records a stream failure for a watcher.
func (h *Checker) RecordWatcherError(collection string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	wh := h.watcher(collection)
	wh.Errors++
	if err != nil {
		wh.LastError = err.Error()
	}
}

// watcher returns the entry for collection, creating it. Caller holds mu.
func (h *Checker) watcher(collection string) *WatcherHealth {
	wh, ok := h.watchers[collection]
	if !ok {
		wh = &WatcherHealth{Collection: collection}
		h.watchers[collection] = wh
	}
	return wh
}

// GetReport returns the current health report.
func (h *Checker) GetReport() Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	report := Report{
		Status:    h.ingestion.Status,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		StartedAt: h.startedAt,
		Ingestion: h.ingestion,
		Watchers:  make([]WatcherHealth, 0, len(h.watchers)),
	}
	for _, wh := range h.watchers {
		report.Watchers = append(report.Watchers, *wh)
	}
	sort.Slice(report.Watchers, func(i, j int) bool {
		return report.Watchers[i].Collection < report.Watchers[j].Collection
	})
	return report
}

// Check returns the overall health status.
func (h *Checker) Check() Status {
	return h.GetReport().Status
}

// ServeHTTP implements http.Handler for the health endpoint. A degraded
// process answers 503 so orchestrators can restart it.
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.GetReport()

	w.Header().Set("Content-Type", "application/json")
	if report.Status == StatusOK {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(report); err != nil {
		h.logger.Error("failed to encode health report", "error", err)
	}
}
