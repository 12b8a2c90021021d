package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// EntityStats are aggregated runtime health numbers for one entity type,
// used by operator tooling to spot wedged actors and conflict storms.
type EntityStats struct {
	EntityType  string  `json:"entity_type"`
	Dispatches  float64 `json:"dispatches"`
	Conflicts   float64 `json:"conflicts"`
	Failures    float64 `json:"failures"`
	FailureRate float64 `json:"failure_rate"`
}

// QueryService queries a Prometheus server for aggregated runtime metrics.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a query service against the given Prometheus URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// GetEntityStats aggregates dispatch, conflict, and failure totals for one
// entity type over the given window.
func (q *QueryService) GetEntityStats(ctx context.Context, entityType string, window time.Duration) (*EntityStats, error) {
	stats := &EntityStats{EntityType: entityType}

	queries := []struct {
		expr string
		dest *float64
	}{
		{fmt.Sprintf(`sum(increase(coordinator_dispatches_total{entity_type=%q}[%s]))`, entityType, model.Duration(window)), &stats.Dispatches},
		{fmt.Sprintf(`sum(increase(coordinator_snapshot_conflicts_total{entity_type=%q}[%s]))`, entityType, model.Duration(window)), &stats.Conflicts},
		{fmt.Sprintf(`sum(increase(coordinator_dispatch_failures_total{entity_type=%q}[%s]))`, entityType, model.Duration(window)), &stats.Failures},
	}

	for _, query := range queries {
		value, _, err := q.queryAPI.Query(ctx, query.expr, time.Now())
		if err != nil {
			return nil, fmt.Errorf("query %q failed: %w", query.expr, err)
		}
		if vec, ok := value.(model.Vector); ok && vec.Len() > 0 {
			*query.dest = float64(vec[0].Value)
		}
	}

	if stats.Dispatches > 0 {
		stats.FailureRate = stats.Failures / stats.Dispatches
	}
	return stats, nil
}
