package strata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPlan(t *testing.T, aggs []*Aggregation, posts []*PostAggregation, opts ...PlanOption) *MetricQueryPlan {
	t.Helper()
	p, err := NewMetricQueryPlan(aggs, posts, opts...)
	require.NoError(t, err)
	return p
}

// assertPlansEquivalent compares two plans level by level, ignoring the order
// of fields and dimensions.
func assertPlansEquivalent(t *testing.T, want, got *MetricQueryPlan) {
	t.Helper()
	require.Equal(t, want.Depth(), got.Depth())
	for w, g := want, got; w != nil; w, g = w.Nested(), g.Nested() {
		assert.ElementsMatch(t, w.FieldNames(), g.FieldNames())
		assert.ElementsMatch(t, w.Dimensions(), g.Dimensions())
		assert.Equal(t, w.TimeGrain(), g.TimeGrain())
		for _, wa := range w.Aggregations() {
			f, err := g.GetField(wa.Name())
			require.NoError(t, err)
			ga, ok := f.(*Aggregation)
			require.True(t, ok, "field %s should be an aggregation", wa.Name())
			assert.True(t, wa.Equal(ga), "aggregation %s: want %s got %s", wa.Name(), wa, ga)
		}
	}
}

func TestNewMetricQueryPlan_RejectsDuplicateNames(t *testing.T) {
	views := mustAgg(t, AggregationLongSum, "views", "page_views")
	post, err := NewConstantPostAggregation("views", 1)
	require.NoError(t, err)

	_, err = NewMetricQueryPlan([]*Aggregation{views}, []*PostAggregation{post})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Equal(t, ErrCodeDuplicateField, ErrorCode(err))
	assert.Contains(t, err.Error(), "views")
}

func TestMetricQueryPlan_NestAddsOneLevel(t *testing.T) {
	views := mustAgg(t, AggregationLongSum, "views", "page_views")
	count := mustAgg(t, AggregationCount, "count", "")
	avg, err := NewArithmeticPostAggregation("avg", ArithmeticDivide, views, count)
	require.NoError(t, err)
	plan := mustPlan(t, []*Aggregation{views, count}, []*PostAggregation{avg},
		PlanDimensions("country"), PlanTimeGrain(TimeGrainDay))

	nested := plan.Nest()
	assert.Equal(t, plan.Depth()+1, nested.Depth())
	assert.True(t, nested.IsNested())
	assert.False(t, plan.IsNested())

	assert.Equal(t, []string{"country"}, nested.Dimensions())
	assert.Equal(t, TimeGrainDay, nested.TimeGrain())
	assert.Equal(t, []string{"views", "count", "avg"}, nested.FieldNames())

	inner := nested.Nested()
	require.NotNil(t, inner)
	assert.Empty(t, inner.PostAggregations())
	assert.Empty(t, inner.Dimensions())
	assert.True(t, inner.TimeGrain().IsZero())
	assert.Equal(t, []string{"views", "count"}, inner.FieldNames())

	deeper := nested.Nest()
	assert.Equal(t, 3, deeper.Depth())
	assert.Same(t, inner, deeper.Nested().Nested())
	assert.Same(t, deeper.InnermostPlan(), inner)
}

func TestMetricQueryPlan_NestPreservesSimpleColumns(t *testing.T) {
	views := mustAgg(t, AggregationLongSum, "views", "page_views")
	peak := mustAgg(t, AggregationDoubleMax, "peak", "latency")
	plan := mustPlan(t, []*Aggregation{views, peak}, nil)

	nested := plan.Nest()
	for _, outer := range nested.Aggregations() {
		f, err := nested.Nested().GetField(outer.FieldName())
		require.NoError(t, err, "outer %s must read an inner column", outer.Name())
		inner := f.(*Aggregation)
		assert.Equal(t, inner.Kind(), outer.Kind())
		assert.Equal(t, outer.Name(), inner.Name())
	}
	original, err := plan.GetField("views")
	require.NoError(t, err)
	inner, err := nested.Nested().GetField("views")
	require.NoError(t, err)
	assert.True(t, original.(*Aggregation).Equal(inner.(*Aggregation)))
}

func TestMetricQueryPlan_MergeIsCommutative(t *testing.T) {
	views := mustAgg(t, AggregationLongSum, "views", "page_views")
	a := mustPlan(t, []*Aggregation{views}, nil, PlanDimensions("country"), PlanTimeGrain(TimeGrainDay))

	count := mustAgg(t, AggregationCount, "count", "")
	uniques := mustAgg(t, AggregationSketchCount, "uniques", "user_id")
	estimate, err := NewSketchEstimatePostAggregation("uniqueEstimate", uniques)
	require.NoError(t, err)
	b := mustPlan(t, []*Aggregation{count, uniques}, []*PostAggregation{estimate}, PlanDimensions("device", "country")).Nest()

	ab, err := a.Merge(b)
	require.NoError(t, err)
	ba, err := b.Merge(a)
	require.NoError(t, err)

	assert.Equal(t, 2, ab.Depth())
	assertPlansEquivalent(t, ab, ba)
	assert.Equal(t, []string{"country", "device"}, ab.Dimensions())
	assert.Equal(t, TimeGrainDay, ab.TimeGrain())
}

func TestMetricQueryPlan_MergeDepthIsMaximum(t *testing.T) {
	views := mustAgg(t, AggregationLongSum, "views", "page_views")
	clicks := mustAgg(t, AggregationLongSum, "clicks", "clicks")
	shallow := mustPlan(t, []*Aggregation{views}, nil)
	deep := mustPlan(t, []*Aggregation{clicks}, nil).Nest().Nest()

	merged, err := shallow.Merge(deep)
	require.NoError(t, err)
	assert.Equal(t, 3, merged.Depth())
	assert.ElementsMatch(t, []string{"views", "clicks"}, merged.InnermostPlan().FieldNames())

	innermostViews, err := merged.InnermostPlan().GetField("views")
	require.NoError(t, err)
	assert.Equal(t, "page_views", innermostViews.(*Aggregation).FieldName())
}

func TestMetricQueryPlan_MergeCountWithNestedUniques(t *testing.T) {
	count := mustPlan(t, []*Aggregation{mustAgg(t, AggregationCount, "count", "")}, nil)
	uniques := mustPlan(t, []*Aggregation{mustAgg(t, AggregationSketchCount, "uniques", "user_id")}, nil).Nest()

	merged, err := count.Merge(uniques)
	require.NoError(t, err)
	require.Equal(t, 2, merged.Depth())

	kinds := func(p *MetricQueryPlan) map[string]AggregationKind {
		out := map[string]AggregationKind{}
		for _, a := range p.Aggregations() {
			out[a.Name()] = a.Kind()
		}
		return out
	}
	assert.Equal(t, map[string]AggregationKind{
		"count":   AggregationLongSum,
		"uniques": AggregationSketchCount,
	}, kinds(merged))
	assert.Equal(t, map[string]AggregationKind{
		"count":   AggregationCount,
		"uniques": AggregationSketchMerge,
	}, kinds(merged.Nested()))
}

func TestMetricQueryPlan_MergeKeepsIdenticalAggregations(t *testing.T) {
	a := mustPlan(t, []*Aggregation{mustAgg(t, AggregationLongSum, "views", "page_views")}, nil)
	b := mustPlan(t, []*Aggregation{mustAgg(t, AggregationLongSum, "views", "page_views")}, nil)

	merged, err := a.Merge(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"views"}, merged.FieldNames())
}

func TestMetricQueryPlan_MergeRejectsConflictingAggregations(t *testing.T) {
	a := mustPlan(t, []*Aggregation{mustAgg(t, AggregationLongSum, "views", "page_views")}, nil)
	b := mustPlan(t, []*Aggregation{mustAgg(t, AggregationLongSum, "views", "impressions")}, nil)

	_, err := a.Merge(b)
	require.Error(t, err)
	assert.True(t, IsRequestError(err))
	assert.Equal(t, ErrCodeAggregationConflict, ErrorCode(err))
	assert.Contains(t, err.Error(), "views")
}

func TestMetricQueryPlan_MergeReconcilesSketchesOverSameField(t *testing.T) {
	theta := mustPlan(t, []*Aggregation{mustAgg(t, AggregationThetaSketch, "users", "user_id")}, nil)
	merge := mustPlan(t, []*Aggregation{mustAgg(t, AggregationSketchMerge, "users", "user_id")}, nil)

	ab, err := theta.Merge(merge)
	require.NoError(t, err)
	ba, err := merge.Merge(theta)
	require.NoError(t, err)

	assertPlansEquivalent(t, ab, ba)
	f, err := ab.GetField("users")
	require.NoError(t, err)
	assert.True(t, f.(*Aggregation).IsSketch())
}

func TestMetricQueryPlan_MergeRejectsSketchesOfDifferentSize(t *testing.T) {
	small := mustPlan(t, []*Aggregation{mustAgg(t, AggregationThetaSketch, "users", "user_id", WithSketchSize(1024))}, nil)
	large := mustPlan(t, []*Aggregation{mustAgg(t, AggregationThetaSketch, "users", "user_id", WithSketchSize(4096))}, nil)

	_, err := small.Merge(large)
	require.Error(t, err)
	assert.Equal(t, ErrCodeAggregationConflict, ErrorCode(err))
}

func TestMetricQueryPlan_MergeRejectsSketchesOverDifferentFields(t *testing.T) {
	a := mustPlan(t, []*Aggregation{mustAgg(t, AggregationThetaSketch, "users", "user_id")}, nil)
	b := mustPlan(t, []*Aggregation{mustAgg(t, AggregationThetaSketch, "users", "device_id")}, nil)

	_, err := a.Merge(b)
	assert.Equal(t, ErrCodeAggregationConflict, ErrorCode(err))
}

func TestMetricQueryPlan_MergeTimeGrains(t *testing.T) {
	views := mustAgg(t, AggregationLongSum, "views", "page_views")
	plan := func(opts ...PlanOption) *MetricQueryPlan { return mustPlan(t, []*Aggregation{views}, nil, opts...) }

	merged, err := plan().Merge(plan())
	require.NoError(t, err)
	assert.True(t, merged.TimeGrain().IsZero())

	merged, err = plan().Merge(plan(PlanTimeGrain(TimeGrainDay)))
	require.NoError(t, err)
	assert.Equal(t, TimeGrainDay, merged.TimeGrain())

	merged, err = plan(PlanTimeGrain(TimeGrainDay)).Merge(plan(PlanTimeGrain(TimeGrainDay)))
	require.NoError(t, err)
	assert.Equal(t, TimeGrainDay, merged.TimeGrain())

	_, err = plan(PlanTimeGrain(TimeGrainDay)).Merge(plan(PlanTimeGrain(TimeGrainHour)))
	require.Error(t, err)
	assert.Equal(t, ErrCodeTimeGrainConflict, ErrorCode(err))
	assert.Contains(t, err.Error(), "day")
	assert.Contains(t, err.Error(), "hour")
}

func TestMetricQueryPlan_MergePostAggregations(t *testing.T) {
	views := mustAgg(t, AggregationLongSum, "views", "page_views")
	double, err := NewArithmeticPostAggregation("double", ArithmeticPlus, views, views)
	require.NoError(t, err)
	triple, err := NewArithmeticPostAggregation("double", ArithmeticMultiply, views, views)
	require.NoError(t, err)

	a := mustPlan(t, []*Aggregation{views}, []*PostAggregation{double})
	b := mustPlan(t, []*Aggregation{views}, []*PostAggregation{double})
	merged, err := a.Merge(b)
	require.NoError(t, err)
	assert.Len(t, merged.PostAggregations(), 1)

	c := mustPlan(t, []*Aggregation{views}, []*PostAggregation{triple})
	_, err = a.Merge(c)
	require.Error(t, err)
	assert.Equal(t, ErrCodeDuplicateField, ErrorCode(err))
}

func TestMetricQueryPlan_IsTimeGrainValid(t *testing.T) {
	views := mustAgg(t, AggregationLongSum, "views", "page_views")
	level := func(grain TimeGrain, nested *MetricQueryPlan) *MetricQueryPlan {
		return mustPlan(t, []*Aggregation{views}, nil, PlanTimeGrain(grain), PlanNested(nested))
	}

	assert.True(t, level(TimeGrainMonth, level(TimeGrainDay, nil)).IsTimeGrainValid())
	assert.True(t, level(TimeGrainDay, level(TimeGrainDay, nil)).IsTimeGrainValid())
	assert.True(t, level("", level(TimeGrainDay, nil)).IsTimeGrainValid())
	assert.True(t, level(TimeGrainDay, level("", nil)).IsTimeGrainValid())
	assert.True(t, level(TimeGrainHour, nil).IsTimeGrainValid())

	invalid := level(TimeGrainDay, level(TimeGrainMonth, nil))
	assert.False(t, invalid.IsTimeGrainValid())
	err := invalid.ValidateTimeGrain()
	assert.Equal(t, ErrCodeInvalidTimeGrain, ErrorCode(err))

	assert.False(t, level(TimeGrainMonth, level(TimeGrainWeek, nil)).IsTimeGrainValid())
	assert.False(t, level(TimeGrainYear, level(TimeGrainMonth, level(TimeGrainYear, nil))).IsTimeGrainValid())
}

func renamePlan(t *testing.T) (*MetricQueryPlan, *Aggregation) {
	t.Helper()
	views := mustAgg(t, AggregationLongSum, "views", "page_views")
	seconds := mustAgg(t, AggregationDoubleSum, "seconds", "time_spent")
	perView, err := NewArithmeticPostAggregation("secondsPerView", ArithmeticDivide, seconds, views)
	require.NoError(t, err)
	access, err := NewFieldAccessPostAggregation("viewsAccess", views)
	require.NoError(t, err)
	hundred, err := NewConstantPostAggregation("hundred", 100)
	require.NoError(t, err)
	scaled, err := NewArithmeticPostAggregation("scaledViews", ArithmeticMultiply, access, hundred)
	require.NoError(t, err)
	return mustPlan(t, []*Aggregation{views, seconds}, []*PostAggregation{perView, scaled}), views
}

func TestMetricQueryPlan_RenameFieldRepointsDependents(t *testing.T) {
	plan, _ := renamePlan(t)

	renamed, err := plan.RenameField("views", "pageViews")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"pageViews", "seconds", "secondsPerView", "scaledViews"}, renamed.FieldNames())
	assert.False(t, renamed.ContainsField("views"))

	perView, err := renamed.GetField("secondsPerView")
	require.NoError(t, err)
	deps := perView.(*PostAggregation).Dependents()
	assert.Equal(t, "seconds", deps[0].Name())
	assert.Equal(t, "pageViews", deps[1].Name())

	scaled, err := renamed.GetField("scaledViews")
	require.NoError(t, err)
	access := scaled.(*PostAggregation).Dependents()[0].(*PostAggregation)
	assert.Equal(t, "pageViews", access.Dependents()[0].Name())

	// the original is untouched
	assert.True(t, plan.ContainsField("views"))
}

func TestMetricQueryPlan_RenameFieldRoundTrip(t *testing.T) {
	plan, _ := renamePlan(t)

	renamed, err := plan.RenameField("views", "pageViews")
	require.NoError(t, err)
	restored, err := renamed.RenameField("pageViews", "views")
	require.NoError(t, err)

	assert.ElementsMatch(t, plan.FieldNames(), restored.FieldNames())
	for _, pa := range plan.PostAggregations() {
		f, err := restored.GetField(pa.Name())
		require.NoError(t, err)
		assert.True(t, pa.Equal(f.(*PostAggregation)), "post-aggregation %s", pa.Name())
	}
}

func TestMetricQueryPlan_RenamePostAggregation(t *testing.T) {
	plan, _ := renamePlan(t)

	renamed, err := plan.RenameField("secondsPerView", "avgSeconds")
	require.NoError(t, err)
	assert.True(t, renamed.ContainsField("avgSeconds"))
	assert.False(t, renamed.ContainsField("secondsPerView"))
}

func TestMetricQueryPlan_RenameFieldErrors(t *testing.T) {
	plan, _ := renamePlan(t)

	same, err := plan.RenameField("views", "views")
	require.NoError(t, err)
	assert.Same(t, plan, same)

	_, err = plan.RenameField("missing", "other")
	assert.Equal(t, ErrCodeFieldNotFound, ErrorCode(err))
	assert.True(t, IsRequestError(err))

	_, err = plan.RenameField("views", "seconds")
	assert.Equal(t, ErrCodeFieldAlreadyExists, ErrorCode(err))
}

func TestMetricQueryPlan_RenameFieldOuterLevelOnly(t *testing.T) {
	plan, _ := renamePlan(t)
	nested := plan.Nest()

	renamed, err := nested.RenameField("views", "pageViews")
	require.NoError(t, err)
	assert.Same(t, nested.Nested(), renamed.Nested())
	assert.True(t, renamed.Nested().ContainsField("views"))
}

func TestMetricQueryPlan_WithTimeGrainAndDimensions(t *testing.T) {
	plan := mustPlan(t, []*Aggregation{mustAgg(t, AggregationLongSum, "views", "page_views")}, nil)

	shaped := plan.WithTimeGrain(TimeGrainWeek).WithDimensions("country", "device", "country")
	assert.Equal(t, TimeGrainWeek, shaped.TimeGrain())
	assert.Equal(t, []string{"country", "device"}, shaped.Dimensions())
	assert.True(t, plan.TimeGrain().IsZero())
	assert.Empty(t, plan.Dimensions())
}

func TestMetricQueryPlan_GetFieldMissing(t *testing.T) {
	plan := mustPlan(t, []*Aggregation{mustAgg(t, AggregationLongSum, "views", "page_views")}, nil)
	_, err := plan.GetField("clicks")
	require.Error(t, err)
	assert.Equal(t, ErrCodeFieldNotFound, ErrorCode(err))
}

func TestMetricQueryPlanMerge_FilteredCountAgainstNestedPlan(t *testing.T) {
	rows := mustAgg(t, AggregationCount, "rows", "")
	mobileRows, err := NewFilteredAggregation("mobileRows", Filter{Dimension: "device", Values: []string{"mobile"}}, rows)
	require.NoError(t, err)
	single := mustPlan(t, []*Aggregation{mobileRows}, nil)

	inner := mustPlan(t, []*Aggregation{mustAgg(t, AggregationLongSum, "views", "page_views")}, nil)
	nested := mustPlan(t, []*Aggregation{mustAgg(t, AggregationLongSum, "views", "views")}, nil, PlanNested(inner))

	merged, err := single.Merge(nested)
	require.NoError(t, err)
	require.Equal(t, 2, merged.Depth())

	field, err := merged.GetField("mobileRows")
	require.NoError(t, err)
	outer, ok := field.(*Aggregation)
	require.True(t, ok)
	assert.Equal(t, AggregationLongSum, outer.Kind())
	assert.Equal(t, "mobileRows", outer.FieldName())
	assert.Nil(t, outer.Filter())

	field, err = merged.Nested().GetField("mobileRows")
	require.NoError(t, err)
	innerRows, ok := field.(*Aggregation)
	require.True(t, ok)
	assert.True(t, innerRows.Equal(mobileRows), "the filtered count runs unchanged on the inner pass")

	assert.True(t, merged.Nested().ContainsField("views"))
}
