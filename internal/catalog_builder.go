package internal

import (
	"context"
	"fmt"
	"slices"

	"github.com/lychee-technology/strata"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CatalogBuilder turns a catalog document into populated resource
// dictionaries: dimensions and metrics first, then one resolution pass and
// one assembly per logical table.
type CatalogBuilder struct {
	dicts          *ResourceDictionaries
	resolver       *TableResolver
	parallelGroups int
}

// NewCatalogBuilder creates a builder. parallelGroups bounds how many logical
// tables resolve concurrently; 0 resolves them one at a time.
func NewCatalogBuilder(dicts *ResourceDictionaries, metadata MetadataService, parallelGroups int) *CatalogBuilder {
	return &CatalogBuilder{
		dicts:          dicts,
		resolver:       NewTableResolver(dicts, metadata),
		parallelGroups: parallelGroups,
	}
}

// Build loads doc into the dictionaries. Any error is a configuration error
// and leaves the dictionaries partially populated.
func (b *CatalogBuilder) Build(ctx context.Context, doc *CatalogDocument) error {
	for _, d := range doc.Dimensions {
		if err := b.dicts.Dimensions.Add(d.BuildDimension()); err != nil {
			return err
		}
	}
	for _, m := range doc.Metrics {
		metric, err := m.BuildMetric()
		if err != nil {
			return err
		}
		if err := b.dicts.Metrics.Add(metric); err != nil {
			return err
		}
	}

	definitions := make([]TableDefinition, 0, len(doc.PhysicalTables))
	for _, pt := range doc.PhysicalTables {
		def, err := pt.BuildDefinition()
		if err != nil {
			return err
		}
		definitions = append(definitions, def)
	}

	return b.BuildLogicalTables(ctx, definitions, doc.LogicalTables)
}

// BuildLogicalTables resolves the physical tables of every logical table and
// registers the logical tables. Physical tables shared between logical tables
// are built once.
func (b *CatalogBuilder) BuildLogicalTables(ctx context.Context, definitions []TableDefinition, logicalTables []LogicalTableDocument) error {
	g, gctx := errgroup.WithContext(ctx)
	limit := b.parallelGroups
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, lt := range logicalTables {
		g.Go(func() error {
			return b.buildLogicalTable(gctx, definitions, lt)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	zap.S().Infow("catalog built",
		"physicalTables", b.dicts.PhysicalTables.Len(),
		"logicalTables", len(b.dicts.LogicalTables.Identifiers()),
		"metrics", len(b.dicts.Metrics.Names()))
	return nil
}

func (b *CatalogBuilder) buildLogicalTable(ctx context.Context, definitions []TableDefinition, doc LogicalTableDocument) error {
	grains := make([]strata.TimeGrain, 0, len(doc.Grains))
	for _, raw := range doc.Grains {
		grain, err := strata.ParseTimeGrain(raw)
		if err != nil {
			return strata.NewInvalidConfigError(doc.Name, err.Error()).WithTable(doc.Name)
		}
		grains = append(grains, grain)
	}

	resolved, err := b.resolver.Resolve(ctx, definitions, doc.PhysicalTables)
	if err != nil {
		return fmt.Errorf("logical table %s: %w", doc.Name, err)
	}

	// The group holds the named tables only; their dependencies stay
	// reachable through the dictionary.
	tables := make([]*PhysicalTable, 0, len(doc.PhysicalTables))
	for _, t := range resolved {
		if slices.Contains(doc.PhysicalTables, t.Name()) {
			tables = append(tables, t)
		}
	}

	metrics := doc.Metrics
	if len(metrics) == 0 {
		set := NewOrderedSet[string]()
		for _, t := range tables {
			for _, name := range t.MetricNames() {
				if _, err := b.dicts.Metrics.Get(name); err == nil {
					set.Add(name)
				}
			}
		}
		metrics = set.Values()
	}

	_, err = NewLogicalTableAssembler(b.dicts).Assemble(doc.Name, grains, NewTableGroup(tables, metrics))
	return err
}
