package strata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAgg(t *testing.T, kind AggregationKind, name, field string, opts ...AggregationOption) *Aggregation {
	t.Helper()
	a, err := NewAggregation(kind, name, field, opts...)
	require.NoError(t, err)
	return a
}

func TestAggregationNest_RepeatsSimpleAggregations(t *testing.T) {
	for _, kind := range []AggregationKind{AggregationLongSum, AggregationDoubleMax, AggregationLongMin, AggregationStringFirst} {
		t.Run(string(kind), func(t *testing.T) {
			a := mustAgg(t, kind, "pageViews", "page_views")

			outer, inner := a.Nest()
			require.NotNil(t, outer)
			require.NotNil(t, inner)

			assert.Same(t, a, inner)
			assert.Equal(t, kind, outer.Kind())
			assert.Equal(t, "pageViews", outer.Name())
			assert.Equal(t, "pageViews", outer.FieldName(), "outer reads the intermediate column")
			assert.Equal(t, "page_views", a.FieldName(), "original is not mutated")
		})
	}
}

func TestAggregationNest_CountBecomesSumOfCounts(t *testing.T) {
	count := mustAgg(t, AggregationCount, "count", "")

	outer, inner := count.Nest()
	require.NotNil(t, outer)
	require.NotNil(t, inner)

	assert.Equal(t, AggregationCount, inner.Kind())
	assert.Equal(t, AggregationLongSum, outer.Kind())
	assert.Equal(t, "count", outer.Name())
	assert.Equal(t, "count", outer.FieldName())
}

func TestAggregationNest_CardinalityCannotSplit(t *testing.T) {
	card := mustAgg(t, AggregationCardinality, "users", "", WithCardinalityDimensions("user_id"), WithByRow(true))

	outer, inner := card.Nest()
	assert.Same(t, card, outer)
	assert.Nil(t, inner)
}

func TestAggregationNest_FilteredAppliesFilterOnce(t *testing.T) {
	views := mustAgg(t, AggregationLongSum, "views", "page_views")
	filtered, err := NewFilteredAggregation("mobileViews", Filter{Dimension: "device", Values: []string{"mobile"}}, views)
	require.NoError(t, err)

	outer, inner := filtered.Nest()
	require.NotNil(t, outer)
	require.NotNil(t, inner)

	assert.True(t, inner.Equal(filtered))
	assert.Equal(t, AggregationLongSum, outer.Kind())
	assert.Equal(t, "mobileViews", outer.Name())
	assert.Equal(t, "mobileViews", outer.FieldName())
	assert.Nil(t, outer.Filter())
}

func TestAggregationNest_FilteredCountSumsOuter(t *testing.T) {
	count := mustAgg(t, AggregationCount, "rows", "")
	filtered, err := NewFilteredAggregation("mobileRows", Filter{Dimension: "device", Values: []string{"mobile"}}, count)
	require.NoError(t, err)

	outer, inner := filtered.Nest()
	require.NotNil(t, inner)
	assert.Equal(t, AggregationFiltered, inner.Kind())
	assert.Equal(t, AggregationCount, inner.Wrapped().Kind())
	assert.Equal(t, AggregationLongSum, outer.Kind())
	assert.Equal(t, "mobileRows", outer.FieldName())
}

func TestAggregationNest_FilteredSketchCountMergesInner(t *testing.T) {
	uniques := mustAgg(t, AggregationSketchCount, "uniques", "user_id", WithSketchSize(2048))
	filtered, err := NewFilteredAggregation("mobileUniques", Filter{Dimension: "device", Values: []string{"mobile"}}, uniques)
	require.NoError(t, err)

	outer, inner := filtered.Nest()
	require.NotNil(t, outer)
	require.NotNil(t, inner)

	assert.Equal(t, AggregationFiltered, inner.Kind())
	assert.Equal(t, "mobileUniques", inner.Name())
	assert.Equal(t, filtered.Filter(), inner.Filter())
	assert.Equal(t, AggregationSketchMerge, inner.Wrapped().Kind(), "inner rows carry sketches, not counts")
	assert.Equal(t, "user_id", inner.Wrapped().FieldName())
	assert.Equal(t, AggregationSketchCount, filtered.Wrapped().Kind(), "original is not mutated")

	assert.Equal(t, AggregationSketchCount, outer.Kind())
	assert.Equal(t, "mobileUniques", outer.FieldName())
	assert.Equal(t, 2048, outer.Size())
	assert.Nil(t, outer.Filter())
}

func TestAggregationNest_FilteredCardinalityStaysOuter(t *testing.T) {
	card := mustAgg(t, AggregationCardinality, "users", "", WithCardinalityDimensions("user_id"))
	filtered, err := NewFilteredAggregation("mobileUsers", Filter{Dimension: "device", Values: []string{"mobile"}}, card)
	require.NoError(t, err)

	outer, inner := filtered.Nest()
	assert.Same(t, filtered, outer)
	assert.Nil(t, inner)
}

func TestAggregationNest_SketchCountMergesInner(t *testing.T) {
	uniques := mustAgg(t, AggregationSketchCount, "uniques", "user_id", WithSketchSize(4096))

	outer, inner := uniques.Nest()
	require.NotNil(t, outer)
	require.NotNil(t, inner)

	assert.Equal(t, AggregationSketchMerge, inner.Kind())
	assert.Equal(t, "user_id", inner.FieldName())
	assert.Equal(t, 4096, inner.Size())

	assert.Equal(t, AggregationSketchCount, outer.Kind())
	assert.Equal(t, "uniques", outer.FieldName())
	assert.Equal(t, 4096, outer.Size())
}

func TestNewAggregation_Validation(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*Aggregation, error)
	}{
		{"empty name", func() (*Aggregation, error) { return NewAggregation(AggregationLongSum, "", "x") }},
		{"missing field", func() (*Aggregation, error) { return NewAggregation(AggregationDoubleSum, "x", "") }},
		{"unknown kind", func() (*Aggregation, error) { return NewAggregation("median", "x", "y") }},
		{"filtered via generic builder", func() (*Aggregation, error) { return NewAggregation(AggregationFiltered, "x", "y") }},
		{"cardinality without dimensions", func() (*Aggregation, error) { return NewAggregation(AggregationCardinality, "x", "") }},
		{"filtered without wrapped", func() (*Aggregation, error) {
			return NewFilteredAggregation("x", Filter{Dimension: "d"}, nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := tt.build()
			require.Error(t, err)
			assert.Nil(t, a)
			assert.True(t, HasErrorCode(err, ErrCodeInvalidAggregation))
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func TestAggregation_FieldNameSuppressedWithoutSourceColumn(t *testing.T) {
	count := mustAgg(t, AggregationCount, "count", "ignored")
	assert.Empty(t, count.FieldName())
	assert.Same(t, count, count.WithFieldName("other"))

	card := mustAgg(t, AggregationCardinality, "users", "ignored", WithCardinalityDimensions("a", "b"))
	assert.Empty(t, card.FieldName())
	assert.Equal(t, []string{"a", "b"}, card.Dimensions())
}

func TestAggregation_SketchDefaults(t *testing.T) {
	theta := mustAgg(t, AggregationThetaSketch, "u", "user_id")
	assert.True(t, theta.IsSketch())
	assert.Equal(t, DefaultSketchSize, theta.Size())
	assert.Same(t, theta, theta.InnerSketch())

	legacy := mustAgg(t, AggregationSketchCount, "u", "user_id")
	assert.Equal(t, AggregationSketchMerge, legacy.InnerSketch().Kind())

	sum := mustAgg(t, AggregationLongSum, "s", "x")
	assert.False(t, sum.IsSketch())
	assert.Zero(t, sum.Size())
}

func TestAggregation_WithTransformsCopy(t *testing.T) {
	a := mustAgg(t, AggregationLongSum, "views", "page_views")
	renamed := a.WithName("pageViews")

	assert.Equal(t, "views", a.Name())
	assert.Equal(t, "pageViews", renamed.Name())
	assert.False(t, a.Equal(renamed))
	assert.True(t, renamed.WithName("views").Equal(a))
}

func TestAggregation_FilteredEquality(t *testing.T) {
	views := mustAgg(t, AggregationLongSum, "views", "page_views")
	a, err := NewFilteredAggregation("m", Filter{Dimension: "device", Values: []string{"mobile"}}, views)
	require.NoError(t, err)
	b, err := NewFilteredAggregation("m", Filter{Dimension: "device", Values: []string{"mobile"}}, views)
	require.NoError(t, err)
	c, err := NewFilteredAggregation("m", Filter{Dimension: "device", Values: []string{"desktop"}}, views)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, "page_views", a.FieldName())
}

func TestParseAggregationKind(t *testing.T) {
	kind, err := ParseAggregationKind("thetaSketch")
	require.NoError(t, err)
	assert.Equal(t, AggregationThetaSketch, kind)

	_, err = ParseAggregationKind("median")
	assert.Error(t, err)
}
