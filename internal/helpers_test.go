package internal

import (
	"context"
	"testing"

	"github.com/lychee-technology/strata"
	"github.com/stretchr/testify/require"
)

func ivs(raw ...string) strata.IntervalList {
	out := make(strata.IntervalList, 0, len(raw))
	for _, r := range raw {
		out = append(out, strata.MustParseInterval(r))
	}
	return out.Simplify()
}

func newTestDictionaries(t *testing.T, dimensions ...string) *ResourceDictionaries {
	t.Helper()
	dicts := NewResourceDictionaries()
	for _, d := range dimensions {
		require.NoError(t, dicts.Dimensions.Add(&Dimension{APIName: d}))
	}
	return dicts
}

func dimConfigs(names ...string) []DimensionConfig {
	out := make([]DimensionConfig, len(names))
	for i, n := range names {
		out[i] = DimensionConfig{APIName: n, PhysicalName: n + "_col"}
	}
	return out
}

func leafDef(t *testing.T, name string, metrics []string, dimensions ...string) *LeafTableDefinition {
	t.Helper()
	def, err := NewLeafTableDefinition(name, strata.TimeGrainDay, metrics, dimConfigs(dimensions...))
	require.NoError(t, err)
	return def
}

func unionDef(t *testing.T, name string, metrics []string, dependents ...string) *MetricUnionTableDefinition {
	t.Helper()
	def, err := NewMetricUnionTableDefinition(name, strata.TimeGrainDay, metrics, nil, dependents)
	require.NoError(t, err)
	return def
}

func resolveAll(t *testing.T, dicts *ResourceDictionaries, metadata MetadataService, defs []TableDefinition, names ...string) ([]*PhysicalTable, error) {
	t.Helper()
	return NewTableResolver(dicts, metadata).Resolve(context.Background(), defs, names)
}

// countingEmitter records telemetry events for the duration of a test.
type countingEmitter struct {
	events map[string]int
}

func captureTelemetry(t *testing.T) *countingEmitter {
	t.Helper()
	c := &countingEmitter{events: make(map[string]int)}
	RegisterTelemetryEmitter(func(_ context.Context, name string, labels map[string]string, _ any) {
		key := name
		for _, k := range SortedKeys(labels) {
			key += "," + k + "=" + labels[k]
		}
		c.events[key]++
	})
	t.Cleanup(func() { RegisterTelemetryEmitter(nil) })
	return c
}
