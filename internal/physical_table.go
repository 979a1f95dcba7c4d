package internal

import (
	"context"
	"slices"

	"github.com/lychee-technology/strata"
)

// TableKind distinguishes leaf tables from the two composite families.
type TableKind string

const (
	TableKindLeaf        TableKind = "leaf"
	TableKindPartition   TableKind = "partition"
	TableKindMetricUnion TableKind = "metricUnion"
)

// PhysicalTable is a built table: its schema and its availability. Built
// tables are shared read-only by every logical table that uses them.
type PhysicalTable struct {
	name              string
	kind              TableKind
	timeGrain         strata.TimeGrain
	dimensions        []*Dimension
	metricNames       []string
	logicalToPhysical map[string]string
	dependencies      []string
	availability      Availability
}

func (t *PhysicalTable) Name() string                { return t.name }
func (t *PhysicalTable) Kind() TableKind             { return t.kind }
func (t *PhysicalTable) TimeGrain() strata.TimeGrain { return t.timeGrain }
func (t *PhysicalTable) Availability() Availability  { return t.availability }

// Dimensions returns the dimension columns of the table.
func (t *PhysicalTable) Dimensions() []*Dimension { return slices.Clone(t.dimensions) }

// MetricNames returns the metric columns of the table.
func (t *PhysicalTable) MetricNames() []string { return slices.Clone(t.metricNames) }

// Dependencies returns the names of the tables this one was composed from.
func (t *PhysicalTable) Dependencies() []string { return slices.Clone(t.dependencies) }

// HasMetric reports whether the table has a metric column called name.
func (t *PhysicalTable) HasMetric(name string) bool {
	return slices.Contains(t.metricNames, name)
}

// PhysicalColumnName maps a logical dimension name to the stored column,
// falling back to the logical name for unmapped columns.
func (t *PhysicalTable) PhysicalColumnName(logicalName string) string {
	if physical, ok := t.logicalToPhysical[logicalName]; ok {
		return physical
	}
	return logicalName
}

// AvailableIntervals returns when the table can answer the constraint.
func (t *PhysicalTable) AvailableIntervals(constraint strata.AvailabilityConstraint) strata.IntervalList {
	return t.availability.AvailableIntervals(constraint)
}

// MissingIntervals returns the parts of requested the table cannot answer.
func (t *PhysicalTable) MissingIntervals(requested strata.IntervalList, constraint strata.AvailabilityConstraint) strata.IntervalList {
	return MissingIntervals(t.availability, requested, constraint)
}

// Refresh reloads a leaf table's availability. Composite tables read their
// members live and need no refresh.
func (t *PhysicalTable) Refresh(ctx context.Context, metadata MetadataService) error {
	leaf, ok := t.availability.(*leafAvailability)
	if !ok {
		return nil
	}
	return leaf.refresh(ctx, metadata)
}
