package strata

import (
	"context"
	"slices"
)

// AvailabilityConstraint narrows an availability lookup to the metrics and
// dimension values a request actually touches. Empty fields mean "everything".
type AvailabilityConstraint struct {
	Metrics          []string            `json:"metrics,omitempty"`
	DimensionFilters map[string][]string `json:"dimensionFilters,omitempty"`
}

// RequiresMetric reports whether name is among the constrained metrics.
func (c AvailabilityConstraint) RequiresMetric(name string) bool {
	return len(c.Metrics) == 0 || slices.Contains(c.Metrics, name)
}

// Catalog is the read side of the federation core: the merged metric plans and
// the logical and physical table dictionaries built at startup.
type Catalog interface {
	// Metric returns a metric definition by name.
	Metric(name string) (*LogicalMetric, error)
	// MergeMetricPlans merges the plans of the named metrics and applies grain
	// and dimensions to the outer level. A grain that differs from one the
	// metrics configure is a TIME_GRAIN_CONFLICT, and the merged levels must
	// pass MetricQueryPlan.ValidateTimeGrain.
	MergeMetricPlans(metricNames []string, grain TimeGrain, dimensions []string) (*MetricQueryPlan, error)
	// LogicalTableGrains lists the grains a logical table is registered for.
	LogicalTableGrains(name string) []TimeGrain
	// PhysicalTableNames lists the physical tables backing a logical table at grain.
	PhysicalTableNames(logicalTable string, grain TimeGrain) ([]string, error)
	// AvailableIntervals returns when a physical table has data for the constraint.
	AvailableIntervals(ctx context.Context, physicalTable string, constraint AvailabilityConstraint) (IntervalList, error)
	// MissingIntervals returns the parts of requested a physical table cannot answer.
	MissingIntervals(ctx context.Context, physicalTable string, requested IntervalList, constraint AvailabilityConstraint) (IntervalList, error)
	// Refresh reloads leaf table availability from the metadata service.
	Refresh(ctx context.Context) error
	Close() error
}
