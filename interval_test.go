package strata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ivs(raw ...string) IntervalList {
	out := make(IntervalList, len(raw))
	for i, r := range raw {
		out[i] = MustParseInterval(r)
	}
	return out
}

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("2017-01-01/2017-12-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), iv.Start)
	assert.Equal(t, time.Date(2017, 12, 31, 0, 0, 0, 0, time.UTC), iv.End)

	iv, err = ParseInterval("2020-01-01T06:00:00Z/2020-01-02T00:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 22, 0, 0, 0, time.UTC), iv.End)

	for _, bad := range []string{"2017-01-01", "2017-02-01/2017-01-01", "yesterday/today"} {
		_, err := ParseInterval(bad)
		assert.Error(t, err, bad)
	}
}

func TestIntervalList_Simplify(t *testing.T) {
	list := NewIntervalList(ivs("2020-01-05/2020-01-10", "2020-01-01/2020-01-03", "2020-01-03/2020-01-04", "2020-01-08/2020-01-12", "2020-02-01/2020-02-01")...)
	assert.Equal(t, ivs("2020-01-01/2020-01-04", "2020-01-05/2020-01-12"), list)
}

func TestIntervalList_Algebra(t *testing.T) {
	a := ivs("2020-01-01/2020-01-10", "2020-01-20/2020-01-30")
	b := ivs("2020-01-05/2020-01-25")

	assert.Equal(t, ivs("2020-01-01/2020-01-30"), a.Union(b))
	assert.Equal(t, ivs("2020-01-05/2020-01-10", "2020-01-20/2020-01-25"), a.Intersect(b))
	assert.Equal(t, ivs("2020-01-01/2020-01-05", "2020-01-25/2020-01-30"), a.Subtract(b))
	assert.Equal(t, ivs("2020-01-10/2020-01-20"), b.Subtract(a))
	assert.Empty(t, a.Intersect(nil))
	assert.Equal(t, a, a.Subtract(nil))
}

func TestIntervalList_Covers(t *testing.T) {
	list := ivs("2020-01-01/2020-01-10", "2020-01-10/2020-01-20")
	assert.True(t, list.Covers(MustParseInterval("2020-01-05/2020-01-15")))
	assert.False(t, list.Covers(MustParseInterval("2019-12-31/2020-01-02")))
	assert.True(t, IntervalList{}.Covers(MustParseInterval("2020-01-01/2020-01-01")))
}
