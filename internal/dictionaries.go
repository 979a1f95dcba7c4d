package internal

import (
	"fmt"
	"sync"

	"github.com/lychee-technology/strata"
)

// PhysicalTableDictionary holds every built physical table. Each name is
// registered once and never replaced. Resolution passes take the build lock
// so concurrent passes cannot build the same table twice; lookups only take
// the read lock.
type PhysicalTableDictionary struct {
	buildMu sync.Mutex
	mu      sync.RWMutex
	tables  map[string]*PhysicalTable
	order   []string
}

// NewPhysicalTableDictionary creates an empty dictionary.
func NewPhysicalTableDictionary() *PhysicalTableDictionary {
	return &PhysicalTableDictionary{tables: make(map[string]*PhysicalTable)}
}

// Get returns the built table called name.
func (d *PhysicalTableDictionary) Get(name string) (*PhysicalTable, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[name]
	return t, ok
}

// Names returns table names in build order.
func (d *PhysicalTableDictionary) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.order...)
}

// Tables returns the built tables in build order.
func (d *PhysicalTableDictionary) Tables() []*PhysicalTable {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*PhysicalTable, len(d.order))
	for i, name := range d.order {
		out[i] = d.tables[name]
	}
	return out
}

// Len returns the number of built tables.
func (d *PhysicalTableDictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// lockBuild serializes resolution passes; the returned func releases the lock.
func (d *PhysicalTableDictionary) lockBuild() func() {
	d.buildMu.Lock()
	return d.buildMu.Unlock
}

// register adds t unless a table of the same name exists, and reports whether it did.
func (d *PhysicalTableDictionary) register(t *PhysicalTable) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tables[t.Name()]; exists {
		return false
	}
	d.tables[t.Name()] = t
	d.order = append(d.order, t.Name())
	return true
}

// TableIdentifier keys a logical table: one name is registered once per grain.
type TableIdentifier struct {
	Name  string           `json:"name"`
	Grain strata.TimeGrain `json:"grain"`
}

func (id TableIdentifier) String() string {
	return fmt.Sprintf("%s@%s", id.Name, id.Grain)
}

// LogicalTableDictionary holds logical tables keyed by name and grain.
type LogicalTableDictionary struct {
	mu     sync.RWMutex
	tables map[TableIdentifier]*LogicalTable
	order  []TableIdentifier
}

// NewLogicalTableDictionary creates an empty dictionary.
func NewLogicalTableDictionary() *LogicalTableDictionary {
	return &LogicalTableDictionary{tables: make(map[TableIdentifier]*LogicalTable)}
}

// Get returns the logical table registered for name at grain.
func (d *LogicalTableDictionary) Get(name string, grain strata.TimeGrain) (*LogicalTable, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[TableIdentifier{Name: name, Grain: grain}]
	return t, ok
}

// Grains lists the grains name is registered for, in registration order.
func (d *LogicalTableDictionary) Grains(name string) []strata.TimeGrain {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var grains []strata.TimeGrain
	for _, id := range d.order {
		if id.Name == name {
			grains = append(grains, id.Grain)
		}
	}
	return grains
}

// Identifiers returns every key in registration order.
func (d *LogicalTableDictionary) Identifiers() []TableIdentifier {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]TableIdentifier(nil), d.order...)
}

func (d *LogicalTableDictionary) register(t *LogicalTable) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := t.Identifier()
	if _, exists := d.tables[id]; exists {
		return strata.NewInvalidConfigError(id.Name, fmt.Sprintf("logical table %s is defined more than once", id))
	}
	d.tables[id] = t
	d.order = append(d.order, id)
	return nil
}

// MetricDictionary maps metric names to their definitions.
type MetricDictionary struct {
	mu      sync.RWMutex
	metrics map[string]*strata.LogicalMetric
	order   []string
}

// NewMetricDictionary creates an empty dictionary.
func NewMetricDictionary() *MetricDictionary {
	return &MetricDictionary{metrics: make(map[string]*strata.LogicalMetric)}
}

// Add registers a metric; names must be unique.
func (d *MetricDictionary) Add(m *strata.LogicalMetric) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.metrics[m.Name]; exists {
		return strata.NewInvalidConfigError(m.Name, fmt.Sprintf("metric %s is defined more than once", m.Name))
	}
	d.metrics[m.Name] = m
	d.order = append(d.order, m.Name)
	return nil
}

// Get returns the metric called name.
func (d *MetricDictionary) Get(name string) (*strata.LogicalMetric, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.metrics[name]
	if !ok {
		return nil, strata.NewUnknownMetricError(name)
	}
	return m, nil
}

// Select returns the named metrics in the order given.
func (d *MetricDictionary) Select(names []string) ([]*strata.LogicalMetric, error) {
	out := make([]*strata.LogicalMetric, 0, len(names))
	for _, name := range names {
		m, err := d.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Names returns metric names in registration order.
func (d *MetricDictionary) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.order...)
}

// DimensionDictionary maps API names to dimensions.
type DimensionDictionary struct {
	mu         sync.RWMutex
	dimensions map[string]*Dimension
	order      []string
}

// NewDimensionDictionary creates an empty dictionary.
func NewDimensionDictionary() *DimensionDictionary {
	return &DimensionDictionary{dimensions: make(map[string]*Dimension)}
}

// Add registers a dimension; names must be unique.
func (d *DimensionDictionary) Add(dim *Dimension) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.dimensions[dim.APIName]; exists {
		return strata.NewInvalidConfigError(dim.APIName, fmt.Sprintf("dimension %s is defined more than once", dim.APIName))
	}
	d.dimensions[dim.APIName] = dim
	d.order = append(d.order, dim.APIName)
	return nil
}

// Get returns the dimension with the given API name.
func (d *DimensionDictionary) Get(name string) (*Dimension, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dim, ok := d.dimensions[name]
	return dim, ok
}

// Names returns dimension names in registration order.
func (d *DimensionDictionary) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.order...)
}

// ResourceDictionaries is the application-scoped context shared by table
// resolution and request handling.
type ResourceDictionaries struct {
	PhysicalTables *PhysicalTableDictionary
	LogicalTables  *LogicalTableDictionary
	Metrics        *MetricDictionary
	Dimensions     *DimensionDictionary
}

// NewResourceDictionaries creates empty dictionaries.
func NewResourceDictionaries() *ResourceDictionaries {
	return &ResourceDictionaries{
		PhysicalTables: NewPhysicalTableDictionary(),
		LogicalTables:  NewLogicalTableDictionary(),
		Metrics:        NewMetricDictionary(),
		Dimensions:     NewDimensionDictionary(),
	}
}
