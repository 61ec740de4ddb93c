package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Sink with Prometheus collectors.
type Prometheus struct {
	enqueueTotal   *prometheus.CounterVec
	enqueueBlock   *prometheus.HistogramVec
	queueWait      *prometheus.HistogramVec
	queueDepth     *prometheus.GaugeVec
	handlerTotal   *prometheus.CounterVec
	changeEvents   *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	cursorFailures *prometheus.CounterVec
	evictions      *prometheus.CounterVec
}

var _ Sink = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		// Dispatch
		enqueueTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_enqueue_total",
			Help: "Inbound events by priority, kind and enqueue result",
		}, []string{"priority", "kind", "result"}),

		enqueueBlock: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_enqueue_block_seconds",
			Help:    "Time the ingestion loop spent blocked on a full queue",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"priority"}),

		queueWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_queue_wait_seconds",
			Help:    "Time an event spent queued before a worker popped it",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"priority"}),

		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "warden_queue_depth",
			Help: "Current number of queued events",
		}, []string{"priority"}),

		handlerTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_handler_total",
			Help: "Handler executions by priority and result",
		}, []string{"priority", "result"}),

		// Watcher
		changeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_change_events_total",
			Help: "Change events processed by collection and operation",
		}, []string{"collection", "operation"}),

		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_watcher_reconnects_total",
			Help: "Change stream reconnects by collection and reason",
		}, []string{"collection", "reason"}),

		cursorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_cursor_persist_failures_total",
			Help: "Failed attempts to persist a watcher cursor",
		}, []string{"collection"}),

		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_cache_evictions_total",
			Help: "Cache keys evicted by the invalidation coordinator",
		}, []string{"collection"}),
	}

	reg.MustRegister(
		p.enqueueTotal,
		p.enqueueBlock,
		p.queueWait,
		p.queueDepth,
		p.handlerTotal,
		p.changeEvents,
		p.reconnects,
		p.cursorFailures,
		p.evictions,
	)
	return p
}

func (p *Prometheus) IncEnqueue(priority, kind, result string) {
	p.enqueueTotal.WithLabelValues(priority, kind, result).Inc()
}

func (p *Prometheus) ObserveEnqueueBlock(priority string, d time.Duration) {
	p.enqueueBlock.WithLabelValues(priority).Observe(d.Seconds())
}

func (p *Prometheus) ObserveQueueWait(priority string, d time.Duration) {
	p.queueWait.WithLabelValues(priority).Observe(d.Seconds())
}

func (p *Prometheus) SetQueueDepth(priority string, depth int) {
	p.queueDepth.WithLabelValues(priority).Set(float64(depth))
}

func (p *Prometheus) IncHandler(priority, result string) {
	p.handlerTotal.WithLabelValues(priority, result).Inc()
}

func (p *Prometheus) IncChangeEvents(collection, operation string) {
	p.changeEvents.WithLabelValues(collection, operation).Inc()
}

func (p *Prometheus) IncReconnects(collection, reason string) {
	p.reconnects.WithLabelValues(collection, reason).Inc()
}

func (p *Prometheus) IncCursorPersistFailures(collection string) {
	p.cursorFailures.WithLabelValues(collection).Inc()
}

func (p *Prometheus) AddCacheEvictions(collection string, n int) {
	p.evictions.WithLabelValues(collection).Add(float64(n))
}
