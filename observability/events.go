package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"yieldledger/core/events"
)

// EventMetrics counts committed ledger events. It satisfies events.Emitter
// so it can sit in an emitter fanout.
type EventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *EventMetrics
)

// Events returns the process-wide event counters.
func Events() *EventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = NewEventMetrics(prometheus.DefaultRegisterer)
	})
	return eventRegistry
}

// NewEventMetrics builds event counters registered with reg.
func NewEventMetrics(reg prometheus.Registerer) *EventMetrics {
	m := &EventMetrics{
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yieldledger",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Count of committed ledger events segmented by type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.emitted)
	}
	return m
}

// Emit implements events.Emitter.
func (m *EventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.RecordEvent(evt.EventType())
}

// RecordEvent increments the counter for the supplied event type.
func (m *EventMetrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(kind))
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}
