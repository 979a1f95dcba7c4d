package strata

import (
	"errors"

	"go.uber.org/zap"
)

// LogicalMetric is a named metric exposed to requests. Plan may be nil for
// metrics computed entirely outside the aggregation query.
type LogicalMetric struct {
	Name        string           `json:"name"`
	LongName    string           `json:"longName,omitempty"`
	Description string           `json:"description,omitempty"`
	Category    string           `json:"category,omitempty"`
	Plan        *MetricQueryPlan `json:"plan,omitempty"`
}

// MergeMetricPlans folds the plans of the selected metrics into one plan.
// Metrics without a plan are skipped; a selection with no plans at all is an error.
func MergeMetricPlans(metrics []*LogicalMetric) (*MetricQueryPlan, error) {
	var (
		merged *MetricQueryPlan
		names  = make([]string, 0, len(metrics))
	)
	for _, m := range metrics {
		if m == nil {
			continue
		}
		names = append(names, m.Name)
		if m.Plan == nil {
			continue
		}
		if merged == nil {
			merged = m.Plan
			continue
		}
		next, err := merged.Merge(m.Plan)
		if err != nil {
			zap.S().Debugw("metric plan merge failed", "metric", m.Name, "error", err)
			var se *StrataError
			if errors.As(err, &se) {
				se.WithDetail("metric", m.Name)
			}
			return nil, err
		}
		merged = next
	}
	if merged == nil {
		return nil, NewEmptyMetricSelectionError(names)
	}
	return merged, nil
}
