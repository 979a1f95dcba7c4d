package strata

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// EarliestInstant is the sentinel used when a partition's availability mark is
// not configured: members marked at this instant always participate. It sits
// one day after the zero time so it is never mistaken for an unset value.
var EarliestInstant = time.Date(1, time.January, 2, 0, 0, 0, 0, time.UTC)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval builds an interval, normalising both ends to UTC.
func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start.UTC(), End: end.UTC()}
}

// ParseInterval parses "start/end" where each side is RFC3339 or a YYYY-MM-DD date.
func ParseInterval(raw string) (Interval, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), "/", 2)
	if len(parts) != 2 {
		return Interval{}, fmt.Errorf("interval %q must have the form start/end", raw)
	}
	start, err := parseInstant(parts[0])
	if err != nil {
		return Interval{}, fmt.Errorf("interval %q: %w", raw, err)
	}
	end, err := parseInstant(parts[1])
	if err != nil {
		return Interval{}, fmt.Errorf("interval %q: %w", raw, err)
	}
	if end.Before(start) {
		return Interval{}, fmt.Errorf("interval %q ends before it starts", raw)
	}
	return NewInterval(start, end), nil
}

// MustParseInterval is ParseInterval for literals known to be valid.
func MustParseInterval(raw string) Interval {
	iv, err := ParseInterval(raw)
	if err != nil {
		panic(err)
	}
	return iv
}

func parseInstant(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid instant %q", raw)
	}
	return t.UTC(), nil
}

// IsEmpty reports whether the interval covers no time.
func (iv Interval) IsEmpty() bool {
	return !iv.End.After(iv.Start)
}

// Overlaps reports whether the two intervals share any instant.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// ContainsInterval reports whether other lies entirely within iv.
func (iv Interval) ContainsInterval(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

func (iv Interval) String() string {
	return iv.Start.Format(time.RFC3339) + "/" + iv.End.Format(time.RFC3339)
}

// IntervalList is a set of intervals. Lists returned by the methods below are
// simplified: sorted, non-empty, with overlapping or abutting intervals joined.
type IntervalList []Interval

// NewIntervalList returns the simplified list of the given intervals.
func NewIntervalList(intervals ...Interval) IntervalList {
	return IntervalList(intervals).Simplify()
}

// Simplify sorts and coalesces the list.
func (l IntervalList) Simplify() IntervalList {
	sorted := make([]Interval, 0, len(l))
	for _, iv := range l {
		if !iv.IsEmpty() {
			sorted = append(sorted, iv)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := IntervalList{}
	for _, iv := range sorted {
		if n := len(out); n > 0 && !iv.Start.After(out[n-1].End) {
			if iv.End.After(out[n-1].End) {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Union returns every instant covered by either list.
func (l IntervalList) Union(other IntervalList) IntervalList {
	merged := make(IntervalList, 0, len(l)+len(other))
	merged = append(merged, l...)
	merged = append(merged, other...)
	return merged.Simplify()
}

// Intersect returns the instants covered by both lists.
func (l IntervalList) Intersect(other IntervalList) IntervalList {
	a, b := l.Simplify(), other.Simplify()
	out := IntervalList{}
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := laterOf(a[i].Start, b[j].Start)
		end := earlierOf(a[i].End, b[j].End)
		if start.Before(end) {
			out = append(out, Interval{Start: start, End: end})
		}
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return out
}

// Subtract returns the instants of l not covered by other.
func (l IntervalList) Subtract(other IntervalList) IntervalList {
	remaining := l.Simplify()
	for _, cut := range other.Simplify() {
		next := IntervalList{}
		for _, iv := range remaining {
			if !iv.Overlaps(cut) {
				next = append(next, iv)
				continue
			}
			if iv.Start.Before(cut.Start) {
				next = append(next, Interval{Start: iv.Start, End: cut.Start})
			}
			if cut.End.Before(iv.End) {
				next = append(next, Interval{Start: cut.End, End: iv.End})
			}
		}
		remaining = next
	}
	return remaining
}

// Covers reports whether every instant of iv is in the list.
func (l IntervalList) Covers(iv Interval) bool {
	return len(IntervalList{iv}.Subtract(l)) == 0
}

func (l IntervalList) String() string {
	parts := make([]string, len(l))
	for i, iv := range l {
		parts[i] = iv.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlierOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
