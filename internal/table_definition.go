package internal

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/lychee-technology/strata"
	"go.uber.org/zap"
)

// TableDefinition is the configuration of one physical table. Build is called
// by the resolver once every table named by DependentTableNames is built.
// Build returns (nil, nil) when it declines to produce a table.
type TableDefinition interface {
	Name() string
	Kind() TableKind
	TimeGrain() strata.TimeGrain
	MetricNames() []string
	DimensionConfigs() []DimensionConfig
	LogicalToPhysicalNames() map[string]string
	DependentTableNames() []string
	Build(ctx context.Context, dicts *ResourceDictionaries, metadata MetadataService) (*PhysicalTable, error)
}

// tableDefinition holds the fields shared by every definition family.
type tableDefinition struct {
	name              string
	timeGrain         strata.TimeGrain
	metricNames       []string
	dimensionConfigs  []DimensionConfig
	logicalToPhysical map[string]string
}

func newTableDefinition(name string, grain strata.TimeGrain, metricNames []string, dimensions []DimensionConfig) (tableDefinition, error) {
	if strings.TrimSpace(name) == "" {
		return tableDefinition{}, strata.NewInvalidConfigError("", "table name is required")
	}
	logicalToPhysical := make(map[string]string, len(dimensions))
	for _, dc := range dimensions {
		if dc.PhysicalName == "" {
			return tableDefinition{}, strata.NewMissingPhysicalNameError(name, dc.APIName)
		}
		logicalToPhysical[dc.APIName] = dc.PhysicalName
	}
	return tableDefinition{
		name:              name,
		timeGrain:         grain,
		metricNames:       NewOrderedSet(metricNames...).Values(),
		dimensionConfigs:  slices.Clone(dimensions),
		logicalToPhysical: logicalToPhysical,
	}, nil
}

func (d *tableDefinition) Name() string                { return d.name }
func (d *tableDefinition) TimeGrain() strata.TimeGrain { return d.timeGrain }
func (d *tableDefinition) MetricNames() []string       { return slices.Clone(d.metricNames) }
func (d *tableDefinition) DimensionConfigs() []DimensionConfig {
	return slices.Clone(d.dimensionConfigs)
}
func (d *tableDefinition) LogicalToPhysicalNames() map[string]string {
	return maps.Clone(d.logicalToPhysical)
}

func (d *tableDefinition) resolveDimensions(dicts *ResourceDictionaries) ([]*Dimension, error) {
	out := make([]*Dimension, 0, len(d.dimensionConfigs))
	for _, dc := range d.dimensionConfigs {
		dim, ok := dicts.Dimensions.Get(dc.APIName)
		if !ok {
			return nil, strata.NewInvalidConfigError(d.name, fmt.Sprintf("unknown dimension %q", dc.APIName)).
				WithTable(d.name).WithField(dc.APIName)
		}
		out = append(out, dim)
	}
	return out, nil
}

// resolveMembers looks up already built dependencies by name.
func (d *tableDefinition) resolveMembers(dicts *ResourceDictionaries, names []string) ([]*PhysicalTable, error) {
	members := make([]*PhysicalTable, 0, len(names))
	for _, name := range names {
		member, ok := dicts.PhysicalTables.Get(name)
		if !ok {
			return nil, strata.NewUnresolvedDependencyError(name, []string{d.name, name})
		}
		members = append(members, member)
	}
	return members, nil
}

// compositeSchema returns the declared dimensions, or the union of the
// members' dimensions when none are declared.
func (d *tableDefinition) compositeSchema(dicts *ResourceDictionaries, members []*PhysicalTable) ([]*Dimension, map[string]string, error) {
	if len(d.dimensionConfigs) > 0 {
		dims, err := d.resolveDimensions(dicts)
		return dims, maps.Clone(d.logicalToPhysical), err
	}
	seen := NewOrderedSet[string]()
	var dims []*Dimension
	mapping := make(map[string]string)
	for _, m := range members {
		for _, dim := range m.Dimensions() {
			if seen.Add(dim.APIName) {
				dims = append(dims, dim)
				mapping[dim.APIName] = m.PhysicalColumnName(dim.APIName)
			}
		}
	}
	return dims, mapping, nil
}

// LeafTableDefinition describes a table backed directly by a datasource.
type LeafTableDefinition struct {
	tableDefinition
}

// NewLeafTableDefinition creates a leaf definition. Every dimension config
// must name its physical column.
func NewLeafTableDefinition(name string, grain strata.TimeGrain, metricNames []string, dimensions []DimensionConfig) (*LeafTableDefinition, error) {
	base, err := newTableDefinition(name, grain, metricNames, dimensions)
	if err != nil {
		return nil, err
	}
	return &LeafTableDefinition{tableDefinition: base}, nil
}

func (d *LeafTableDefinition) Kind() TableKind               { return TableKindLeaf }
func (d *LeafTableDefinition) DependentTableNames() []string { return nil }

// Build snapshots the table's availability from the metadata service. Without
// a metadata service there is nothing to serve from, so the build is declined.
func (d *LeafTableDefinition) Build(ctx context.Context, dicts *ResourceDictionaries, metadata MetadataService) (*PhysicalTable, error) {
	if metadata == nil {
		zap.S().Warnw("no metadata service configured, leaf table not built", "table", d.name)
		return nil, nil
	}
	dims, err := d.resolveDimensions(dicts)
	if err != nil {
		return nil, err
	}
	intervals, err := metadata.Availability(ctx, d.name)
	if err != nil {
		return nil, strata.NewMetadataUnavailableError(d.name, err)
	}
	return &PhysicalTable{
		name:              d.name,
		kind:              TableKindLeaf,
		timeGrain:         d.timeGrain,
		dimensions:        dims,
		metricNames:       d.MetricNames(),
		logicalToPhysical: d.LogicalToPhysicalNames(),
		availability:      newLeafAvailability(d.name, intervals),
	}, nil
}

// PartitionRule routes requests to a member table. The member only serves
// requests whose values for each filtered dimension intersect the allowed
// values. Before AvailableFrom the member does not count towards missing data;
// the zero value means it always counts.
type PartitionRule struct {
	MemberTable          string              `json:"table"`
	DimensionValueFilter map[string][]string `json:"filter,omitempty"`
	AvailableFrom        time.Time           `json:"availableFrom,omitempty"`
}

func (r PartitionRule) mark() time.Time {
	if r.AvailableFrom.IsZero() {
		return strata.EarliestInstant
	}
	return r.AvailableFrom.UTC()
}

// PartitionTableDefinition describes a table split by dimension value across
// member tables.
type PartitionTableDefinition struct {
	tableDefinition
	rules []PartitionRule
}

// NewPartitionTableDefinition creates a partition composite with one rule per member.
func NewPartitionTableDefinition(name string, grain strata.TimeGrain, metricNames []string, dimensions []DimensionConfig, rules []PartitionRule) (*PartitionTableDefinition, error) {
	base, err := newTableDefinition(name, grain, metricNames, dimensions)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, strata.NewInvalidConfigError(name, "partition table requires at least one member").WithTable(name)
	}
	seen := NewOrderedSet[string]()
	for _, r := range rules {
		if r.MemberTable == "" {
			return nil, strata.NewInvalidConfigError(name, "partition rule without member table").WithTable(name)
		}
		if !seen.Add(r.MemberTable) {
			return nil, strata.NewInvalidConfigError(name, fmt.Sprintf("member %s listed more than once", r.MemberTable)).WithTable(name)
		}
	}
	return &PartitionTableDefinition{tableDefinition: base, rules: slices.Clone(rules)}, nil
}

func (d *PartitionTableDefinition) Kind() TableKind { return TableKindPartition }

// Rules returns the partition rules in declaration order.
func (d *PartitionTableDefinition) Rules() []PartitionRule { return slices.Clone(d.rules) }

func (d *PartitionTableDefinition) DependentTableNames() []string {
	names := make([]string, len(d.rules))
	for i, r := range d.rules {
		names[i] = r.MemberTable
	}
	return names
}

// Build pairs each member's built table with its value filter and mark.
func (d *PartitionTableDefinition) Build(ctx context.Context, dicts *ResourceDictionaries, metadata MetadataService) (*PhysicalTable, error) {
	tables, err := d.resolveMembers(dicts, d.DependentTableNames())
	if err != nil {
		return nil, err
	}
	members := make([]partitionMember, len(d.rules))
	for i, r := range d.rules {
		members[i] = partitionMember{
			table:  tables[i],
			filter: maps.Clone(r.DimensionValueFilter),
			mark:   r.mark(),
		}
	}
	dims, mapping, err := d.compositeSchema(dicts, tables)
	if err != nil {
		return nil, err
	}
	return &PhysicalTable{
		name:              d.name,
		kind:              TableKindPartition,
		timeGrain:         d.timeGrain,
		dimensions:        dims,
		metricNames:       d.MetricNames(),
		logicalToPhysical: mapping,
		dependencies:      d.DependentTableNames(),
		availability:      &partitionAvailability{members: members},
	}, nil
}

// MetricUnionTableDefinition describes a table whose metric columns come from
// several member tables, each metric from exactly one member.
type MetricUnionTableDefinition struct {
	tableDefinition
	dependents []string
}

// NewMetricUnionTableDefinition creates a metric union over the named tables.
func NewMetricUnionTableDefinition(name string, grain strata.TimeGrain, metricNames []string, dimensions []DimensionConfig, dependents []string) (*MetricUnionTableDefinition, error) {
	base, err := newTableDefinition(name, grain, metricNames, dimensions)
	if err != nil {
		return nil, err
	}
	if len(dependents) == 0 {
		return nil, strata.NewInvalidConfigError(name, "metric union table requires at least one dependent table").WithTable(name)
	}
	return &MetricUnionTableDefinition{tableDefinition: base, dependents: NewOrderedSet(dependents...).Values()}, nil
}

func (d *MetricUnionTableDefinition) Kind() TableKind { return TableKindMetricUnion }

func (d *MetricUnionTableDefinition) DependentTableNames() []string {
	return slices.Clone(d.dependents)
}

// Build checks that no metric column appears on two members and that every
// required metric appears on one, then unions the members' availability.
func (d *MetricUnionTableDefinition) Build(ctx context.Context, dicts *ResourceDictionaries, metadata MetadataService) (*PhysicalTable, error) {
	members, err := d.resolveMembers(dicts, d.dependents)
	if err != nil {
		return nil, err
	}
	if err := d.validateMemberMetrics(members); err != nil {
		return nil, err
	}
	dims, mapping, err := d.compositeSchema(dicts, members)
	if err != nil {
		return nil, err
	}
	return &PhysicalTable{
		name:              d.name,
		kind:              TableKindMetricUnion,
		timeGrain:         d.timeGrain,
		dimensions:        dims,
		metricNames:       d.MetricNames(),
		logicalToPhysical: mapping,
		dependencies:      d.DependentTableNames(),
		availability:      newMetricUnionAvailability(members),
	}, nil
}

func (d *MetricUnionTableDefinition) validateMemberMetrics(members []*PhysicalTable) error {
	sources := make(map[string][]string)
	for _, m := range members {
		for _, metric := range m.MetricNames() {
			sources[metric] = append(sources[metric], m.Name())
		}
	}

	var duplicates []string
	for _, metric := range SortedKeys(sources) {
		if len(sources[metric]) > 1 {
			duplicates = append(duplicates, metric)
		}
	}
	if len(duplicates) > 0 {
		err := strata.NewDuplicateMetricError(d.name, duplicates)
		for _, metric := range duplicates {
			err.WithDetail("tables."+metric, sources[metric])
		}
		return err
	}

	var missing []string
	for _, metric := range d.metricNames {
		if _, ok := sources[metric]; !ok {
			missing = append(missing, metric)
		}
	}
	if len(missing) > 0 {
		return strata.NewMissingMetricError(d.name, missing)
	}
	return nil
}
