package strata

import (
	"fmt"
	"strings"
	"time"
)

// TimeGrain is the bucketing unit a query groups time by. The zero value means
// no grain has been set.
type TimeGrain string

const (
	TimeGrainMinute  TimeGrain = "minute"
	TimeGrainHour    TimeGrain = "hour"
	TimeGrainDay     TimeGrain = "day"
	TimeGrainWeek    TimeGrain = "week"
	TimeGrainMonth   TimeGrain = "month"
	TimeGrainQuarter TimeGrain = "quarter"
	TimeGrainYear    TimeGrain = "year"
	// TimeGrainAll collapses the whole interval into a single bucket.
	TimeGrainAll TimeGrain = "all"
)

// satisfiers lists, for every grain, the grains whose buckets nest exactly
// inside it. Weeks do not align with months, so only day and finer build weeks.
var satisfiers = map[TimeGrain][]TimeGrain{
	TimeGrainMinute:  {TimeGrainMinute},
	TimeGrainHour:    {TimeGrainMinute, TimeGrainHour},
	TimeGrainDay:     {TimeGrainMinute, TimeGrainHour, TimeGrainDay},
	TimeGrainWeek:    {TimeGrainMinute, TimeGrainHour, TimeGrainDay, TimeGrainWeek},
	TimeGrainMonth:   {TimeGrainMinute, TimeGrainHour, TimeGrainDay, TimeGrainMonth},
	TimeGrainQuarter: {TimeGrainMinute, TimeGrainHour, TimeGrainDay, TimeGrainMonth, TimeGrainQuarter},
	TimeGrainYear:    {TimeGrainMinute, TimeGrainHour, TimeGrainDay, TimeGrainMonth, TimeGrainQuarter, TimeGrainYear},
	TimeGrainAll: {TimeGrainMinute, TimeGrainHour, TimeGrainDay, TimeGrainWeek, TimeGrainMonth,
		TimeGrainQuarter, TimeGrainYear, TimeGrainAll},
}

// ParseTimeGrain converts a case-insensitive grain name.
func ParseTimeGrain(raw string) (TimeGrain, error) {
	g := TimeGrain(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := satisfiers[g]; !ok {
		return "", fmt.Errorf("unknown time grain %q", raw)
	}
	return g, nil
}

// IsZero reports whether the grain is unset.
func (g TimeGrain) IsZero() bool {
	return g == ""
}

// SatisfiedBy reports whether buckets of g can be computed from data already
// bucketed at other, i.e. other is equal to or finer than g and aligns with it.
func (g TimeGrain) SatisfiedBy(other TimeGrain) bool {
	for _, s := range satisfiers[g] {
		if s == other {
			return true
		}
	}
	return false
}

// RoundFloor truncates t (in UTC) to the start of its bucket.
func (g TimeGrain) RoundFloor(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case TimeGrainMinute:
		return t.Truncate(time.Minute)
	case TimeGrainHour:
		return t.Truncate(time.Hour)
	case TimeGrainDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case TimeGrainWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// ISO weeks start on Monday
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case TimeGrainMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case TimeGrainQuarter:
		month := ((t.Month()-1)/3)*3 + 1
		return time.Date(t.Year(), month, 1, 0, 0, 0, 0, time.UTC)
	case TimeGrainYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// mergeTimeGrains combines the grains of two plans being merged.
func mergeTimeGrains(a, b TimeGrain) (TimeGrain, error) {
	switch {
	case a.IsZero():
		return b, nil
	case b.IsZero(), a == b:
		return a, nil
	default:
		return "", NewTimeGrainConflictError(a, b)
	}
}
