package e2e_harness

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lychee-technology/strata"
	"github.com/lychee-technology/strata/factory"
	"github.com/lychee-technology/strata/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogDir = "../testdata/catalog"

func loadCatalogDocument(t *testing.T) *internal.CatalogDocument {
	t.Helper()
	loader, err := internal.NewCatalogLoader(catalogDir, "yaml", true)
	require.NoError(t, err)
	doc, err := loader.Load()
	require.NoError(t, err)
	return doc
}

// assertFixtureAvailability checks the intervals every source should yield
// for DefaultSegments.
func assertFixtureAvailability(t *testing.T, ctx context.Context, catalog strata.Catalog) {
	t.Helper()

	got, err := catalog.AvailableIntervals(ctx, "pv_us", strata.AvailabilityConstraint{})
	require.NoError(t, err)
	assert.Equal(t, strata.IntervalList{strata.MustParseInterval("2020-01-01/2020-06-01")}, got)

	missing, err := catalog.MissingIntervals(ctx, "engagement",
		strata.IntervalList{strata.MustParseInterval("2020-01-01/2020-06-01")},
		strata.AvailabilityConstraint{Metrics: []string{"clicks"}})
	require.NoError(t, err)
	assert.Equal(t, strata.IntervalList{
		strata.MustParseInterval("2020-01-01/2020-02-01"),
		strata.MustParseInterval("2020-05-01/2020-06-01"),
	}, missing)
}

func TestE2EAvailabilitySources(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E harness in -short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()
	h := &TestHarness{}
	segments := DefaultSegments()

	t.Run("postgres", func(t *testing.T) {
		svc, err := h.StartPostgres(ctx, "table_availability")
		defer h.StopPostgres(ctx)
		require.NoError(t, err)

		require.NoError(t, h.SeedPostgres(ctx, "table_availability", segments[:2]))
		for _, s := range segments[2:] {
			require.NoError(t, svc.RecordAvailability(ctx, s.Table, strata.NewInterval(s.Start, s.End)))
		}

		catalog, err := factory.NewCatalogFromDocument(ctx, loadCatalogDocument(t), svc, 2)
		require.NoError(t, err)
		defer catalog.Close()
		assertFixtureAvailability(t, ctx, catalog)
	})

	t.Run("s3", func(t *testing.T) {
		svc, err := h.StartS3(ctx, "availability", "manifests")
		defer h.StopS3(ctx)
		require.NoError(t, err)

		for table, intervals := range SegmentsBySource(segments) {
			require.NoError(t, svc.PublishManifest(ctx, table, intervals))
		}

		catalog, err := factory.NewCatalogFromDocument(ctx, loadCatalogDocument(t), svc, 0)
		require.NoError(t, err)
		defer catalog.Close()
		assertFixtureAvailability(t, ctx, catalog)
	})

	t.Run("duckdb", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "segments.parquet")
		svc, err := h.StartDuckDB(strata.DuckDBConfig{SegmentSource: path})
		defer h.StopDuckDB()
		require.NoError(t, err)

		require.NoError(t, h.WriteSegmentsParquet(ctx, path, segments))

		catalog, err := factory.NewCatalogFromDocument(ctx, loadCatalogDocument(t), svc, 0)
		require.NoError(t, err)
		defer catalog.Close()
		assertFixtureAvailability(t, ctx, catalog)
	})
}
