package internal

import (
	"testing"

	"github.com/lychee-technology/strata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nestedViewsMetric(outer, inner string) MetricDocument {
	return MetricDocument{
		Name: "monthlyViews",
		Plan: PlanDocument{
			Grain:        outer,
			Aggregations: []AggregationDocument{{Kind: "longSum", Name: "views", Field: "views"}},
			Nested: &PlanDocument{
				Grain:        inner,
				Aggregations: []AggregationDocument{{Kind: "longSum", Name: "views", Field: "page_views"}},
			},
		},
	}
}

func TestMetricDocument_BuildNestedGrains(t *testing.T) {
	metric, err := nestedViewsMetric("month", "day").BuildMetric()
	require.NoError(t, err)
	assert.Equal(t, 2, metric.Plan.Depth())
	assert.Equal(t, strata.TimeGrainMonth, metric.Plan.TimeGrain())

	_, err = nestedViewsMetric("", "month").BuildMetric()
	require.NoError(t, err, "an unset outer grain is valid")

	_, err = nestedViewsMetric("day", "month").BuildMetric()
	require.Error(t, err)
	assert.True(t, strata.HasErrorCode(err, strata.ErrCodeInvalidTimeGrain))
	assert.Contains(t, err.Error(), "monthlyViews")
}
