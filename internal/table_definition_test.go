package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/lychee-technology/strata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLeafTableDefinition_MissingPhysicalName(t *testing.T) {
	_, err := NewLeafTableDefinition("pageviews", strata.TimeGrainDay, []string{"views"},
		[]DimensionConfig{{APIName: "country", PhysicalName: "country_col"}, {APIName: "device"}})
	require.Error(t, err)
	assert.True(t, strata.HasErrorCode(err, strata.ErrCodeMissingPhysicalName))

	var se *strata.StrataError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "pageviews", se.Table)
	assert.Equal(t, "device", se.Field)
}

func TestLeafTableDefinition_BuildSnapshotsAvailability(t *testing.T) {
	dicts := newTestDictionaries(t, "country")
	metadata := NewStaticMetadataService(map[string]strata.IntervalList{
		"pageviews": ivs("2020-01-01/2020-02-01", "2020-02-01/2020-03-01"),
	})

	table, err := leafDef(t, "pageviews", []string{"views"}, "country").Build(context.Background(), dicts, metadata)
	require.NoError(t, err)
	require.NotNil(t, table)

	assert.Equal(t, TableKindLeaf, table.Kind())
	assert.Equal(t, "country_col", table.PhysicalColumnName("country"))
	assert.Equal(t, "device", table.PhysicalColumnName("device"))
	assert.Equal(t, ivs("2020-01-01/2020-03-01"), table.AvailableIntervals(strata.AvailabilityConstraint{}))
	assert.Equal(t, []string{"pageviews"}, table.Availability().DataSourceNames())
}

func TestLeafTableDefinition_BuildRefusedWithoutMetadata(t *testing.T) {
	table, err := leafDef(t, "pageviews", []string{"views"}).Build(context.Background(), NewResourceDictionaries(), nil)
	assert.NoError(t, err)
	assert.Nil(t, table)
}

func TestLeafTableDefinition_UnknownDimension(t *testing.T) {
	_, err := leafDef(t, "pageviews", []string{"views"}, "planet").
		Build(context.Background(), NewResourceDictionaries(), NewStaticMetadataService(nil))
	require.Error(t, err)
	assert.True(t, strata.HasErrorCode(err, strata.ErrCodeInvalidConfig))
}

type failingMetadata struct{ err error }

func (f failingMetadata) Availability(context.Context, string) (strata.IntervalList, error) {
	return nil, f.err
}

func TestLeafTableDefinition_MetadataFailureSurfaces(t *testing.T) {
	cause := errors.New("connection refused")
	_, err := leafDef(t, "pageviews", []string{"views"}).
		Build(context.Background(), NewResourceDictionaries(), failingMetadata{err: cause})
	require.Error(t, err)
	assert.True(t, strata.HasErrorCode(err, strata.ErrCodeMetadataUnavailable))
	assert.ErrorIs(t, err, cause)
}

func TestMetricUnionTableDefinition_DuplicateMetric(t *testing.T) {
	dicts := NewResourceDictionaries()
	defs := []TableDefinition{
		leafDef(t, "T1", []string{"A", "B"}),
		leafDef(t, "T2", []string{"B", "C"}),
		unionDef(t, "U", []string{"A", "B", "C"}, "T1", "T2"),
	}

	_, err := resolveAll(t, dicts, NewStaticMetadataService(nil), defs, "U")
	require.Error(t, err)
	assert.True(t, strata.HasErrorCode(err, strata.ErrCodeTableBuildFailed))
	assert.True(t, strata.HasErrorCode(err, strata.ErrCodeDuplicateMetric))

	var se *strata.StrataError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "U", se.Table)

	dup := se.Cause.(*strata.StrataError)
	assert.Equal(t, []string{"B"}, dup.Details["metrics"])
	assert.Equal(t, []string{"T1", "T2"}, dup.Details["tables.B"])
}

func TestMetricUnionTableDefinition_MissingMetric(t *testing.T) {
	dicts := NewResourceDictionaries()
	defs := []TableDefinition{
		leafDef(t, "T1", []string{"A"}),
		unionDef(t, "U", []string{"A", "B"}, "T1"),
	}

	_, err := resolveAll(t, dicts, NewStaticMetadataService(nil), defs, "U")
	require.Error(t, err)
	assert.True(t, strata.HasErrorCode(err, strata.ErrCodeMissingMetric))

	var se *strata.StrataError
	require.True(t, errors.As(err.(*strata.StrataError).Cause, &se))
	assert.Equal(t, []string{"B"}, se.Details["metrics"])
}

func TestMetricUnionTableDefinition_InheritsMemberDimensions(t *testing.T) {
	dicts := newTestDictionaries(t, "country", "device")
	defs := []TableDefinition{
		leafDef(t, "T1", []string{"A"}, "country"),
		leafDef(t, "T2", []string{"B"}, "country", "device"),
		unionDef(t, "U", []string{"A", "B"}, "T1", "T2"),
	}

	tables, err := resolveAll(t, dicts, NewStaticMetadataService(nil), defs, "U")
	require.NoError(t, err)
	union := tables[len(tables)-1]
	require.Equal(t, "U", union.Name())

	var names []string
	for _, d := range union.Dimensions() {
		names = append(names, d.APIName)
	}
	assert.Equal(t, []string{"country", "device"}, names)
	assert.Equal(t, "device_col", union.PhysicalColumnName("device"))
	assert.Equal(t, []string{"T1", "T2"}, union.Dependencies())
}

func TestNewPartitionTableDefinition_Validation(t *testing.T) {
	_, err := NewPartitionTableDefinition("P", strata.TimeGrainDay, nil, nil, nil)
	assert.True(t, strata.HasErrorCode(err, strata.ErrCodeInvalidConfig))

	_, err = NewPartitionTableDefinition("P", strata.TimeGrainDay, nil, nil,
		[]PartitionRule{{MemberTable: "M"}, {MemberTable: "M"}})
	assert.True(t, strata.HasErrorCode(err, strata.ErrCodeInvalidConfig))

	def, err := NewPartitionTableDefinition("P", strata.TimeGrainDay, nil, nil,
		[]PartitionRule{{MemberTable: "M"}, {MemberTable: "N"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"M", "N"}, def.DependentTableNames())
	assert.Len(t, def.Rules(), 2)
}
