package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheus_Counters(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.IncEnqueue("high", "READY", ResultEnqueued)
	p.IncEnqueue("high", "READY", ResultEnqueued)
	p.IncHandler("low", ResultFailure)
	p.AddCacheEvictions("channels", 3)
	p.IncReconnects("channels", "cursor_invalid")
	p.IncCursorPersistFailures("channels")
	p.IncChangeEvents("channels", "update")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.enqueueTotal.WithLabelValues("high", "READY", ResultEnqueued)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.handlerTotal.WithLabelValues("low", ResultFailure)))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.evictions.WithLabelValues("channels")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.reconnects.WithLabelValues("channels", "cursor_invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cursorFailures.WithLabelValues("channels")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.changeEvents.WithLabelValues("channels", "update")))
}

func TestPrometheus_GaugesAndHistograms(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.SetQueueDepth("normal", 7)
	p.ObserveQueueWait("normal", 10*time.Millisecond)
	p.ObserveEnqueueBlock("normal", time.Millisecond)

	assert.Equal(t, 7.0, testutil.ToFloat64(p.queueDepth.WithLabelValues("normal")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.queueWait))
	assert.Equal(t, 1, testutil.CollectAndCount(p.enqueueBlock))
}

func TestPrometheus_DoubleRegisterPanics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	NewPrometheus(reg)
	assert.Panics(t, func() { NewPrometheus(reg) })
}

func TestNoop(t *testing.T) {
	t.Parallel()
	var s Sink = Noop{}
	s.IncEnqueue("high", "READY", ResultEnqueued)
	s.ObserveEnqueueBlock("high", time.Second)
	s.ObserveQueueWait("high", time.Second)
	s.SetQueueDepth("high", 1)
	s.IncHandler("high", ResultSuccess)
	s.IncChangeEvents("c", "insert")
	s.IncReconnects("c", "error")
	s.IncCursorPersistFailures("c")
	s.AddCacheEvictions("c", 1)
}
