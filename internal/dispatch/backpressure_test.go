package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/syntrixbase/warden/internal/events"
)

func TestBackpressureMonitor_Grades(t *testing.T) {
	t.Parallel()
	sink := newRecordingSink()
	b := NewBackpressureMonitor(sink, 10*time.Millisecond, 100*time.Millisecond)

	assert.Equal(t, PressureNone, b.Observe(events.PriorityHigh, time.Millisecond))
	assert.Equal(t, PressureSlow, b.Observe(events.PriorityHigh, 50*time.Millisecond))
	assert.Equal(t, PressureCritical, b.Observe(events.PriorityHigh, time.Second))
	assert.Equal(t, 3, sink.blockObservations("high"))
}

func TestBackpressureMonitor_Defaults(t *testing.T) {
	t.Parallel()
	b := NewBackpressureMonitor(nil, 0, 0)
	assert.Equal(t, 100*time.Millisecond, b.slowThreshold)
	assert.Equal(t, time.Second, b.criticalThreshold)
	assert.Equal(t, "critical", PressureCritical.String())
	assert.Equal(t, "unknown", Pressure(9).String())
}
