package internal

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/lychee-technology/strata"
)

// MetadataService reports the intervals for which a physical table has data.
type MetadataService interface {
	Availability(ctx context.Context, tableName string) (strata.IntervalList, error)
}

// Availability answers when a built table can serve a request.
type Availability interface {
	// DataSourceNames lists the leaf tables whose data backs this availability.
	DataSourceNames() []string
	AvailableIntervals(constraint strata.AvailabilityConstraint) strata.IntervalList
}

// MissingIntervals is the part of requested that availability cannot serve.
func MissingIntervals(a Availability, requested strata.IntervalList, constraint strata.AvailabilityConstraint) strata.IntervalList {
	return requested.Subtract(a.AvailableIntervals(constraint))
}

// leafAvailability is a snapshot of one table's intervals taken from the
// metadata service. Refresh replaces the snapshot.
type leafAvailability struct {
	table     string
	mu        sync.RWMutex
	intervals strata.IntervalList
}

func newLeafAvailability(table string, intervals strata.IntervalList) *leafAvailability {
	return &leafAvailability{table: table, intervals: intervals.Simplify()}
}

func (a *leafAvailability) DataSourceNames() []string { return []string{a.table} }

func (a *leafAvailability) AvailableIntervals(strata.AvailabilityConstraint) strata.IntervalList {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.intervals)
}

func (a *leafAvailability) refresh(ctx context.Context, metadata MetadataService) error {
	intervals, err := metadata.Availability(ctx, a.table)
	if err != nil {
		return strata.NewMetadataUnavailableError(a.table, err)
	}
	a.mu.Lock()
	a.intervals = intervals.Simplify()
	a.mu.Unlock()
	return nil
}

// partitionMember is one member table of a partition composite together with
// the dimension values routed to it and the instant it became responsible.
type partitionMember struct {
	table  *PhysicalTable
	filter map[string][]string
	mark   time.Time
}

// matches reports whether a request constrained by filters can be routed to
// the member: every dimension named by the member's rule must share at least
// one value with the request. Dimensions the request leaves open always match.
func (m partitionMember) matches(filters map[string][]string) bool {
	for dimension, allowed := range m.filter {
		requested, ok := filters[dimension]
		if !ok || len(requested) == 0 {
			continue
		}
		if !slices.ContainsFunc(requested, func(v string) bool { return slices.Contains(allowed, v) }) {
			return false
		}
	}
	return true
}

// effectiveIntervals treats everything before the member's mark as available,
// since the member did not exist yet and cannot have a gap there.
func (m partitionMember) effectiveIntervals(constraint strata.AvailabilityConstraint) strata.IntervalList {
	available := m.table.Availability().AvailableIntervals(constraint)
	if !m.mark.After(strata.EarliestInstant) {
		return available
	}
	return available.Union(strata.IntervalList{strata.NewInterval(strata.EarliestInstant, m.mark)})
}

// partitionAvailability intersects the availability of the members a request
// routes to.
type partitionAvailability struct {
	members []partitionMember
}

func (a *partitionAvailability) DataSourceNames() []string {
	names := NewOrderedSet[string]()
	for _, m := range a.members {
		names.AddAll(m.table.Availability().DataSourceNames()...)
	}
	return names.Values()
}

func (a *partitionAvailability) AvailableIntervals(constraint strata.AvailabilityConstraint) strata.IntervalList {
	var result strata.IntervalList
	selected := 0
	for _, m := range a.members {
		if !m.matches(constraint.DimensionFilters) {
			continue
		}
		intervals := m.effectiveIntervals(constraint)
		if selected == 0 {
			result = intervals
		} else {
			result = result.Intersect(intervals)
		}
		selected++
	}
	if selected == 0 {
		return strata.IntervalList{}
	}
	return result
}

// metricUnionAvailability unions, per metric, the members that carry it.
type metricUnionAvailability struct {
	members       []*PhysicalTable
	metricSources map[string][]*PhysicalTable
}

func newMetricUnionAvailability(members []*PhysicalTable) *metricUnionAvailability {
	sources := make(map[string][]*PhysicalTable)
	for _, m := range members {
		for _, metric := range m.MetricNames() {
			sources[metric] = append(sources[metric], m)
		}
	}
	return &metricUnionAvailability{members: members, metricSources: sources}
}

func (a *metricUnionAvailability) DataSourceNames() []string {
	names := NewOrderedSet[string]()
	for _, m := range a.members {
		names.AddAll(m.Availability().DataSourceNames()...)
	}
	return names.Values()
}

// AvailableIntervals returns, without metric constraints, every interval any
// member covers. With constraints, each requested metric must be available
// from at least one of its members.
func (a *metricUnionAvailability) AvailableIntervals(constraint strata.AvailabilityConstraint) strata.IntervalList {
	if len(constraint.Metrics) == 0 {
		return unionOf(a.members, constraint)
	}
	var result strata.IntervalList
	for i, metric := range constraint.Metrics {
		narrowed := strata.AvailabilityConstraint{Metrics: []string{metric}, DimensionFilters: constraint.DimensionFilters}
		perMetric := unionOf(a.metricSources[metric], narrowed)
		if i == 0 {
			result = perMetric
			continue
		}
		result = result.Intersect(perMetric)
	}
	return result
}

func unionOf(tables []*PhysicalTable, constraint strata.AvailabilityConstraint) strata.IntervalList {
	out := strata.IntervalList{}
	for _, t := range tables {
		out = out.Union(t.Availability().AvailableIntervals(constraint))
	}
	return out
}
