package internal

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/lychee-technology/strata"
)

// StaticMetadataService serves availability from memory. Tables it does not
// know have no data.
type StaticMetadataService struct {
	mu        sync.RWMutex
	intervals map[string]strata.IntervalList
}

// NewStaticMetadataService creates a service over the given availability.
func NewStaticMetadataService(intervals map[string]strata.IntervalList) *StaticMetadataService {
	s := &StaticMetadataService{intervals: make(map[string]strata.IntervalList, len(intervals))}
	for table, list := range intervals {
		s.intervals[table] = list.Simplify()
	}
	return s
}

// ParseStaticAvailability parses "start/end" strings per table, the format
// used by the availability.static configuration section.
func ParseStaticAvailability(raw map[string][]string) (map[string]strata.IntervalList, error) {
	out := make(map[string]strata.IntervalList, len(raw))
	for table, values := range raw {
		list := make(strata.IntervalList, 0, len(values))
		for _, v := range values {
			iv, err := strata.ParseInterval(v)
			if err != nil {
				return nil, fmt.Errorf("availability for table %s: %w", table, err)
			}
			list = append(list, iv)
		}
		out[table] = list.Simplify()
	}
	return out, nil
}

// Set replaces the availability of table.
func (s *StaticMetadataService) Set(table string, intervals strata.IntervalList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervals[table] = intervals.Simplify()
}

func (s *StaticMetadataService) Availability(ctx context.Context, table string) (strata.IntervalList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	EmitAvailabilityLookup(ctx, "static", "hit")
	return slices.Clone(s.intervals[table]), nil
}
