package factory

import (
	"context"
	"fmt"

	"github.com/lychee-technology/strata"
	"github.com/lychee-technology/strata/internal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const refreshConcurrency = 8

// Catalog implements strata.Catalog over resolved resource dictionaries.
type Catalog struct {
	dicts    *internal.ResourceDictionaries
	metadata internal.MetadataService
	closers  []func()
}

var _ strata.Catalog = (*Catalog)(nil)

func newCatalog(dicts *internal.ResourceDictionaries, metadata internal.MetadataService) *Catalog {
	return &Catalog{dicts: dicts, metadata: metadata}
}

// Dictionaries exposes the resolved dictionaries for tooling.
func (c *Catalog) Dictionaries() *internal.ResourceDictionaries {
	return c.dicts
}

func (c *Catalog) Metric(name string) (*strata.LogicalMetric, error) {
	return c.dicts.Metrics.Get(name)
}

func (c *Catalog) MergeMetricPlans(metricNames []string, grain strata.TimeGrain, dimensions []string) (*strata.MetricQueryPlan, error) {
	metrics, err := c.dicts.Metrics.Select(metricNames)
	if err != nil {
		return nil, err
	}
	plan, err := strata.MergeMetricPlans(metrics)
	if err != nil {
		return nil, err
	}
	plan, err = plan.RequestTimeGrain(grain)
	if err != nil {
		return nil, err
	}
	if len(dimensions) > 0 {
		plan = plan.WithDimensions(dimensions...)
	}
	return plan, nil
}

func (c *Catalog) LogicalTableGrains(name string) []strata.TimeGrain {
	return c.dicts.LogicalTables.Grains(name)
}

func (c *Catalog) PhysicalTableNames(logicalTable string, grain strata.TimeGrain) ([]string, error) {
	lt, ok := c.dicts.LogicalTables.Get(logicalTable, grain)
	if !ok {
		return nil, strata.NewUnknownTableError(fmt.Sprintf("%s@%s", logicalTable, grain))
	}
	return lt.TableGroup().PhysicalTableNames(), nil
}

func (c *Catalog) physicalTable(name string) (*internal.PhysicalTable, error) {
	t, ok := c.dicts.PhysicalTables.Get(name)
	if !ok {
		return nil, strata.NewUnknownTableError(name)
	}
	return t, nil
}

func (c *Catalog) AvailableIntervals(ctx context.Context, physicalTable string, constraint strata.AvailabilityConstraint) (strata.IntervalList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := c.physicalTable(physicalTable)
	if err != nil {
		return nil, err
	}
	return t.AvailableIntervals(constraint), nil
}

func (c *Catalog) MissingIntervals(ctx context.Context, physicalTable string, requested strata.IntervalList, constraint strata.AvailabilityConstraint) (strata.IntervalList, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := c.physicalTable(physicalTable)
	if err != nil {
		return nil, err
	}
	return t.MissingIntervals(requested, constraint), nil
}

// Refresh reloads every leaf table's availability. Composite tables read
// their members' snapshots and need no refresh of their own.
func (c *Catalog) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cache, ok := c.metadata.(*internal.CachingMetadataService); ok {
		cache.Invalidate()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	refreshed := 0
	for _, t := range c.dicts.PhysicalTables.Tables() {
		if t.Kind() != internal.TableKindLeaf {
			continue
		}
		refreshed++
		g.Go(func() error {
			return t.Refresh(gctx, c.metadata)
		})
	}
	if err := g.Wait(); err != nil {
		zap.S().Errorw("availability refresh failed", "error", err)
		return err
	}
	zap.S().Infow("availability refreshed", "tables", refreshed)
	return nil
}

func (c *Catalog) Close() error {
	for _, closer := range c.closers {
		if closer != nil {
			closer()
		}
	}
	c.closers = nil
	return nil
}
