package internal

import (
	"slices"

	"github.com/lychee-technology/strata"
	"go.uber.org/zap"
)

// TableGroup is the set of physical tables backing a logical table, together
// with the dimensions they expose and the metrics the logical table offers.
type TableGroup struct {
	physicalTables []*PhysicalTable
	dimensions     []*Dimension
	metricNames    []string
}

// NewTableGroup creates a group whose dimensions are the union of the
// physical tables' dimension columns, first-seen order.
func NewTableGroup(tables []*PhysicalTable, metricNames []string) *TableGroup {
	seen := NewOrderedSet[string]()
	var dims []*Dimension
	for _, t := range tables {
		for _, d := range t.Dimensions() {
			if seen.Add(d.APIName) {
				dims = append(dims, d)
			}
		}
	}
	return &TableGroup{
		physicalTables: slices.Clone(tables),
		dimensions:     dims,
		metricNames:    NewOrderedSet(metricNames...).Values(),
	}
}

func (g *TableGroup) PhysicalTables() []*PhysicalTable { return slices.Clone(g.physicalTables) }
func (g *TableGroup) Dimensions() []*Dimension         { return slices.Clone(g.dimensions) }
func (g *TableGroup) MetricNames() []string            { return slices.Clone(g.metricNames) }

// PhysicalTableNames lists the backing tables in resolution order.
func (g *TableGroup) PhysicalTableNames() []string {
	names := make([]string, len(g.physicalTables))
	for i, t := range g.physicalTables {
		names[i] = t.Name()
	}
	return names
}

// LogicalTable is the request-facing view of a table group at one grain.
type LogicalTable struct {
	name    string
	grain   strata.TimeGrain
	group   *TableGroup
	metrics *MetricDictionary
}

func (t *LogicalTable) Name() string            { return t.name }
func (t *LogicalTable) Grain() strata.TimeGrain { return t.grain }
func (t *LogicalTable) TableGroup() *TableGroup { return t.group }
func (t *LogicalTable) Identifier() TableIdentifier {
	return TableIdentifier{Name: t.name, Grain: t.grain}
}

// Metrics returns the group's metrics as defined in the metric dictionary.
func (t *LogicalTable) Metrics() ([]*strata.LogicalMetric, error) {
	return t.metrics.Select(t.group.MetricNames())
}

// LogicalTableAssembler registers one logical table per grain of a table group.
type LogicalTableAssembler struct {
	dicts *ResourceDictionaries
}

// NewLogicalTableAssembler creates an assembler writing into dicts.LogicalTables.
func NewLogicalTableAssembler(dicts *ResourceDictionaries) *LogicalTableAssembler {
	return &LogicalTableAssembler{dicts: dicts}
}

// Assemble binds group to name at every grain and registers the entries.
// Every metric of the group must exist in the metric dictionary.
func (a *LogicalTableAssembler) Assemble(name string, grains []strata.TimeGrain, group *TableGroup) ([]*LogicalTable, error) {
	if len(grains) == 0 {
		return nil, strata.NewInvalidConfigError(name, "logical table has no grains").WithTable(name)
	}
	for _, metric := range group.MetricNames() {
		if _, err := a.dicts.Metrics.Get(metric); err != nil {
			return nil, strata.NewInvalidConfigError(name, "logical table references an unknown metric").
				WithTable(name).WithField(metric).WithCause(err)
		}
	}

	tables := make([]*LogicalTable, 0, len(grains))
	for _, grain := range NewOrderedSet(grains...).Values() {
		for _, pt := range group.physicalTables {
			if !pt.TimeGrain().IsZero() && !grain.SatisfiedBy(pt.TimeGrain()) {
				zap.S().Warnw("logical grain is finer than physical table grain",
					"logicalTable", name, "grain", grain, "physicalTable", pt.Name(), "physicalGrain", pt.TimeGrain())
			}
		}
		lt := &LogicalTable{name: name, grain: grain, group: group, metrics: a.dicts.Metrics}
		if err := a.dicts.LogicalTables.register(lt); err != nil {
			return nil, err
		}
		tables = append(tables, lt)
	}
	zap.S().Infow("registered logical table", "name", name, "grains", grains, "physicalTables", group.PhysicalTableNames())
	return tables, nil
}
