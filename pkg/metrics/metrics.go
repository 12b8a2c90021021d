// Package metrics exposes Prometheus instrumentation for the actor runtime
// and a query service for operator-side aggregation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RuntimeMetrics holds the collectors the actor runtime reports into.
type RuntimeMetrics struct {
	dispatches  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

// NewRuntimeMetrics registers the runtime collectors with the given
// registerer (pass prometheus.DefaultRegisterer in production).
func NewRuntimeMetrics(reg prometheus.Registerer) *RuntimeMetrics {
	factory := promauto.With(reg)
	return &RuntimeMetrics{
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_dispatches_total",
			Help: "Events dispatched into the actor runtime.",
		}, []string{"entity_type", "event_kind"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_transitions_total",
			Help: "Committed state transitions.",
		}, []string{"entity_type", "from", "to"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_snapshot_conflicts_total",
			Help: "Optimistic-concurrency conflicts that triggered a reload.",
		}, []string{"entity_type"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_dispatch_failures_total",
			Help: "Dispatches that surfaced a typed actor error.",
		}, []string{"entity_type", "kind"}),
	}
}

// DispatchStarted counts one inbound event.
func (m *RuntimeMetrics) DispatchStarted(entityType, eventKind string) {
	m.dispatches.WithLabelValues(entityType, eventKind).Inc()
}

// TransitionApplied counts one committed transition.
func (m *RuntimeMetrics) TransitionApplied(entityType, from, to string) {
	m.transitions.WithLabelValues(entityType, from, to).Inc()
}

// ConflictRetried counts one stale-version reload.
func (m *RuntimeMetrics) ConflictRetried(entityType string) {
	m.conflicts.WithLabelValues(entityType).Inc()
}

// DispatchFailed counts one typed dispatch failure.
func (m *RuntimeMetrics) DispatchFailed(entityType, kind string) {
	m.failures.WithLabelValues(entityType, kind).Inc()
}
