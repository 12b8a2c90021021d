package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRuntimeMetrics(reg)

	m.DispatchStarted("pr", "REVIEW_COMPLETE")
	m.DispatchStarted("pr", "REVIEW_COMPLETE")
	m.DispatchStarted("repo", "SYNC_TRIGGER")
	m.TransitionApplied("pr", "reviewing", "fixing")
	m.ConflictRetried("repo")
	m.DispatchFailed("pr", "conflict")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dispatches.WithLabelValues("pr", "REVIEW_COMPLETE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues("repo", "SYNC_TRIGGER")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("pr", "reviewing", "fixing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflicts.WithLabelValues("repo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("pr", "conflict")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"coordinator_dispatches_total",
		"coordinator_transitions_total",
		"coordinator_snapshot_conflicts_total",
		"coordinator_dispatch_failures_total",
	}, names)
}

func TestRuntimeMetricsDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRuntimeMetrics(reg)
	assert.Panics(t, func() { NewRuntimeMetrics(reg) })
}
