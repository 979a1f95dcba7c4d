package internal

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/lychee-technology/strata"
	"go.uber.org/zap"
)

type cachedAvailability struct {
	intervals strata.IntervalList
	loadedAt  time.Time
}

// CachingMetadataService memoizes availability per table for a TTL so that
// repeated resolution passes do not hit the backing store.
type CachingMetadataService struct {
	next  MetadataService
	ttl   time.Duration
	mu    sync.RWMutex
	cache map[string]cachedAvailability
	now   func() time.Time
}

// NewCachingMetadataService wraps next. A zero ttl disables caching.
func NewCachingMetadataService(next MetadataService, ttl time.Duration) *CachingMetadataService {
	return &CachingMetadataService{
		next:  next,
		ttl:   ttl,
		cache: make(map[string]cachedAvailability),
		now:   time.Now,
	}
}

func (c *CachingMetadataService) Availability(ctx context.Context, table string) (strata.IntervalList, error) {
	if c.ttl > 0 {
		c.mu.RLock()
		entry, ok := c.cache[table]
		c.mu.RUnlock()
		if ok && c.now().Sub(entry.loadedAt) < c.ttl {
			EmitAvailabilityLookup(ctx, "cache", "hit")
			return slices.Clone(entry.intervals), nil
		}
		EmitAvailabilityLookup(ctx, "cache", "miss")
	}

	intervals, err := c.next.Availability(ctx, table)
	if err != nil {
		return nil, err
	}

	if c.ttl > 0 {
		c.mu.Lock()
		c.cache[table] = cachedAvailability{intervals: slices.Clone(intervals), loadedAt: c.now()}
		c.mu.Unlock()
	}
	return intervals, nil
}

// Invalidate drops cached entries for the given tables, or all entries when
// none are named.
func (c *CachingMetadataService) Invalidate(tables ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(tables) == 0 {
		clear(c.cache)
		return
	}
	for _, t := range tables {
		delete(c.cache, t)
	}
}

// BreakerMetadataService fails fast while the backing store is unhealthy.
type BreakerMetadataService struct {
	next    MetadataService
	breaker *CircuitBreaker
	source  string
}

// NewBreakerMetadataService wraps next with breaker. source labels telemetry.
func NewBreakerMetadataService(next MetadataService, breaker *CircuitBreaker, source string) *BreakerMetadataService {
	return &BreakerMetadataService{next: next, breaker: breaker, source: source}
}

func (b *BreakerMetadataService) Availability(ctx context.Context, table string) (strata.IntervalList, error) {
	if b.breaker.IsOpen() {
		EmitAvailabilityLookup(ctx, b.source, "rejected")
		return nil, strata.NewMetadataUnavailableError(table, fmt.Errorf("%s availability source circuit open", b.source))
	}
	intervals, err := b.next.Availability(ctx, table)
	if err != nil {
		b.breaker.RecordFailure()
		if b.breaker.IsOpen() {
			zap.S().Warnw("availability circuit opened", "source", b.source, "table", table, "error", err)
		}
		return nil, err
	}
	b.breaker.RecordSuccess()
	return intervals, nil
}
