package strata

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"
)

// MetricQueryPlan is one level of an aggregation query together with the
// chain of levels nested beneath it. Plans are immutable; every operation
// returns a new plan.
type MetricQueryPlan struct {
	aggregations     []*Aggregation
	postAggregations []*PostAggregation
	dimensions       []string
	timeGrain        TimeGrain
	nested           *MetricQueryPlan
}

// PlanOption configures optional parts of a plan level.
type PlanOption func(*MetricQueryPlan)

// PlanDimensions sets the dimensions grouped by at this level.
func PlanDimensions(dimensions ...string) PlanOption {
	return func(p *MetricQueryPlan) { p.dimensions = appendUnique(nil, dimensions...) }
}

// PlanTimeGrain sets the time grain of this level.
func PlanTimeGrain(grain TimeGrain) PlanOption {
	return func(p *MetricQueryPlan) { p.timeGrain = grain }
}

// PlanNested sets the level computed before this one.
func PlanNested(nested *MetricQueryPlan) PlanOption {
	return func(p *MetricQueryPlan) { p.nested = nested }
}

// NewMetricQueryPlan builds a plan level. Aggregation and post-aggregation
// names must be unique across the level.
func NewMetricQueryPlan(aggregations []*Aggregation, postAggregations []*PostAggregation, opts ...PlanOption) (*MetricQueryPlan, error) {
	p := &MetricQueryPlan{
		aggregations:     slices.Clone(aggregations),
		postAggregations: slices.Clone(postAggregations),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *MetricQueryPlan) validate() error {
	seen := make(map[string]int, len(p.aggregations)+len(p.postAggregations))
	for _, a := range p.aggregations {
		if a == nil {
			return NewInvalidAggregationError("", "query plan contains a nil aggregation")
		}
		seen[a.Name()]++
	}
	for _, pa := range p.postAggregations {
		if pa == nil {
			return NewInvalidAggregationError("", "query plan contains a nil post-aggregation")
		}
		seen[pa.Name()]++
	}
	var duplicates []string
	for name, n := range seen {
		if n > 1 {
			duplicates = append(duplicates, name)
		}
	}
	if len(duplicates) > 0 {
		sort.Strings(duplicates)
		return NewDuplicateFieldError(duplicates)
	}
	return nil
}

// Aggregations returns the aggregations of the outer level.
func (p *MetricQueryPlan) Aggregations() []*Aggregation { return slices.Clone(p.aggregations) }

// PostAggregations returns the post-aggregations of the outer level.
func (p *MetricQueryPlan) PostAggregations() []*PostAggregation {
	return slices.Clone(p.postAggregations)
}

// Dimensions returns the grouping dimensions of the outer level in first-seen order.
func (p *MetricQueryPlan) Dimensions() []string { return slices.Clone(p.dimensions) }

// TimeGrain returns the grain of the outer level; the zero value when unset.
func (p *MetricQueryPlan) TimeGrain() TimeGrain { return p.timeGrain }

// Nested returns the inner level, or nil for a single-pass plan.
func (p *MetricQueryPlan) Nested() *MetricQueryPlan { return p.nested }

// Depth is the number of passes: 1 for a plan without a nested level.
func (p *MetricQueryPlan) Depth() int {
	depth := 1
	for n := p.nested; n != nil; n = n.nested {
		depth++
	}
	return depth
}

// IsNested reports whether the plan needs more than one pass.
func (p *MetricQueryPlan) IsNested() bool { return p.nested != nil }

// InnermostPlan returns the level computed first, which reads raw rows.
func (p *MetricQueryPlan) InnermostPlan() *MetricQueryPlan {
	level := p
	for level.nested != nil {
		level = level.nested
	}
	return level
}

// FieldNames returns the output names of the outer level, aggregations first.
func (p *MetricQueryPlan) FieldNames() []string {
	names := make([]string, 0, len(p.aggregations)+len(p.postAggregations))
	for _, a := range p.aggregations {
		names = append(names, a.Name())
	}
	for _, pa := range p.postAggregations {
		names = append(names, pa.Name())
	}
	return names
}

// ContainsField reports whether the outer level has a field called name.
func (p *MetricQueryPlan) ContainsField(name string) bool {
	_, ok := p.lookup(name)
	return ok
}

// GetField returns the outer-level field called name.
func (p *MetricQueryPlan) GetField(name string) (Field, error) {
	f, ok := p.lookup(name)
	if !ok {
		return nil, NewFieldNotFoundError(name)
	}
	return f, nil
}

func (p *MetricQueryPlan) lookup(name string) (Field, bool) {
	for _, a := range p.aggregations {
		if a.Name() == name {
			return a, true
		}
	}
	for _, pa := range p.postAggregations {
		if pa.Name() == name {
			return pa, true
		}
	}
	return nil, false
}

func (p *MetricQueryPlan) clone() *MetricQueryPlan {
	return &MetricQueryPlan{
		aggregations:     slices.Clone(p.aggregations),
		postAggregations: slices.Clone(p.postAggregations),
		dimensions:       slices.Clone(p.dimensions),
		timeGrain:        p.timeGrain,
		nested:           p.nested,
	}
}

// WithTimeGrain returns a copy whose outer level uses grain.
func (p *MetricQueryPlan) WithTimeGrain(grain TimeGrain) *MetricQueryPlan {
	c := p.clone()
	c.timeGrain = grain
	return c
}

// RequestTimeGrain merges a requested grain into the outer level and checks
// the result against the nested levels. An empty grain keeps the configured
// one; a grain different from a configured one is a TIME_GRAIN_CONFLICT.
func (p *MetricQueryPlan) RequestTimeGrain(grain TimeGrain) (*MetricQueryPlan, error) {
	merged, err := mergeTimeGrains(p.timeGrain, grain)
	if err != nil {
		return nil, err
	}
	plan := p
	if merged != p.timeGrain {
		plan = p.WithTimeGrain(merged)
	}
	if err := plan.ValidateTimeGrain(); err != nil {
		return nil, err
	}
	return plan, nil
}

// WithDimensions returns a copy whose outer level groups by dimensions.
func (p *MetricQueryPlan) WithDimensions(dimensions ...string) *MetricQueryPlan {
	c := p.clone()
	c.dimensions = appendUnique(nil, dimensions...)
	return c
}

// Nest turns an N-pass plan into an N+1-pass plan. Each aggregation is split
// into its outer and inner parts; the inner parts form a new level placed
// above the existing nested level, and the outer level keeps the
// post-aggregations, dimensions and time grain.
func (p *MetricQueryPlan) Nest() *MetricQueryPlan {
	outer := make([]*Aggregation, 0, len(p.aggregations))
	inner := make([]*Aggregation, 0, len(p.aggregations))
	var moved []aggregationReplacement
	for _, a := range p.aggregations {
		o, i := a.Nest()
		if o != nil {
			outer = append(outer, o)
			if o != a {
				moved = append(moved, aggregationReplacement{old: a, replacement: o})
			}
		}
		if i != nil {
			inner = append(inner, i)
		}
	}
	innerLevel := &MetricQueryPlan{aggregations: inner, nested: p.nested}
	return &MetricQueryPlan{
		aggregations:     outer,
		postAggregations: repointAll(p.postAggregations, moved),
		dimensions:       slices.Clone(p.dimensions),
		timeGrain:        p.timeGrain,
		nested:           innerLevel,
	}
}

// Merge combines two plans into one whose depth is the larger of the two.
// The shallower plan is nested until both have the same depth, then each
// pair of levels is merged.
func (p *MetricQueryPlan) Merge(other *MetricQueryPlan) (*MetricQueryPlan, error) {
	a, b := p, other
	for a.Depth() < b.Depth() {
		a = a.Nest()
	}
	for b.Depth() < a.Depth() {
		b = b.Nest()
	}
	return mergeLevels(a, b)
}

func mergeLevels(a, b *MetricQueryPlan) (*MetricQueryPlan, error) {
	aggregations, replaced, err := mergeAggregations(a.aggregations, b.aggregations)
	if err != nil {
		return nil, err
	}

	postAggregations := repointAll(a.postAggregations, replaced)
	for _, pb := range repointAll(b.postAggregations, replaced) {
		if !slices.ContainsFunc(postAggregations, pb.Equal) {
			postAggregations = append(postAggregations, pb)
		}
	}

	grain, err := mergeTimeGrains(a.timeGrain, b.timeGrain)
	if err != nil {
		return nil, err
	}

	var nested *MetricQueryPlan
	if a.nested != nil && b.nested != nil {
		if nested, err = mergeLevels(a.nested, b.nested); err != nil {
			return nil, err
		}
	}

	merged := &MetricQueryPlan{
		aggregations:     aggregations,
		postAggregations: postAggregations,
		dimensions:       appendUnique(slices.Clone(a.dimensions), b.dimensions...),
		timeGrain:        grain,
		nested:           nested,
	}
	if err := merged.validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// aggregationReplacement records an aggregation swapped for another during
// nest or merge, so post-aggregations reading it can follow.
type aggregationReplacement struct {
	old, replacement *Aggregation
}

func repointAll(postAggregations []*PostAggregation, replacements []aggregationReplacement) []*PostAggregation {
	out := slices.Clone(postAggregations)
	for i := range out {
		for _, r := range replacements {
			out[i] = out[i].Repoint(r.old, r.replacement)
		}
	}
	return out
}

func mergeAggregations(a, b []*Aggregation) ([]*Aggregation, []aggregationReplacement, error) {
	merged := slices.Clone(a)
	index := make(map[string]int, len(merged))
	for i, agg := range merged {
		index[agg.Name()] = i
	}
	var replaced []aggregationReplacement
	for _, agg := range b {
		i, ok := index[agg.Name()]
		if !ok {
			index[agg.Name()] = len(merged)
			merged = append(merged, agg)
			continue
		}
		existing := merged[i]
		resolved, err := resolveAggregationCollision(existing, agg)
		if err != nil {
			return nil, nil, err
		}
		for _, old := range []*Aggregation{existing, agg} {
			if !old.Equal(resolved) {
				replaced = append(replaced, aggregationReplacement{old: old, replacement: resolved})
			}
		}
		merged[i] = resolved
	}
	return merged, replaced, nil
}

// resolveAggregationCollision reconciles two aggregations sharing a name.
// Only identical aggregations, or sketches of the same size over the same
// column, can share a name.
func resolveAggregationCollision(a, b *Aggregation) (*Aggregation, error) {
	if a.Equal(b) {
		return a, nil
	}
	if !a.IsSketch() || !b.IsSketch() || a.FieldName() != b.FieldName() {
		return nil, NewAggregationConflictError(a.Name()).
			WithDetail("left", a.String()).
			WithDetail("right", b.String())
	}
	if a.Size() != b.Size() {
		return nil, NewAggregationConflictError(a.Name()).
			WithDetail("reason", "sketch sizes differ").
			WithDetail("sizes", []int{a.Size(), b.Size()})
	}
	ia, ib := a.InnerSketch(), b.InnerSketch()
	// either side's conversion is valid; pick by kind so merge order does not matter
	if ib.Kind() < ia.Kind() {
		return ib, nil
	}
	return ia, nil
}

// IsTimeGrainValid reports whether every outer level can be bucketed from the
// level beneath it. Unset grains are always valid.
func (p *MetricQueryPlan) IsTimeGrainValid() bool {
	return p.ValidateTimeGrain() == nil
}

// ValidateTimeGrain is IsTimeGrainValid returning the offending pair of grains.
func (p *MetricQueryPlan) ValidateTimeGrain() error {
	for level := p; level.nested != nil; level = level.nested {
		outer, inner := level.timeGrain, level.nested.timeGrain
		if outer.IsZero() || inner.IsZero() {
			continue
		}
		if !outer.SatisfiedBy(inner) {
			return NewInvalidTimeGrainError(outer, inner)
		}
	}
	return nil
}

// RenameField renames an outer-level field and repoints the post-aggregations
// that read it. Nested levels are not touched.
func (p *MetricQueryPlan) RenameField(current, name string) (*MetricQueryPlan, error) {
	if current == name {
		return p, nil
	}
	field, err := p.GetField(current)
	if err != nil {
		return nil, err
	}
	if p.ContainsField(name) {
		return nil, NewFieldAlreadyExistsError(name)
	}

	var renamed Field
	switch f := field.(type) {
	case *Aggregation:
		renamed = f.WithName(name)
	case *PostAggregation:
		renamed = f.WithName(name)
	}

	c := p.clone()
	for i, a := range c.aggregations {
		if a.Name() == current {
			c.aggregations[i] = renamed.(*Aggregation)
		}
	}
	for i, pa := range c.postAggregations {
		if pa.Name() == current {
			c.postAggregations[i] = renamed.(*PostAggregation)
			continue
		}
		c.postAggregations[i] = pa.Repoint(field, renamed)
	}
	return c, nil
}

func (p *MetricQueryPlan) String() string {
	var b strings.Builder
	for level, depth := p, 1; level != nil; level, depth = level.nested, depth+1 {
		if depth > 1 {
			b.WriteString(" <- ")
		}
		b.WriteString("[")
		b.WriteString(strings.Join(level.FieldNames(), ","))
		if !level.timeGrain.IsZero() {
			b.WriteString(" @")
			b.WriteString(string(level.timeGrain))
		}
		b.WriteString("]")
	}
	return b.String()
}

type queryPlanJSON struct {
	Aggregations     []*Aggregation     `json:"aggregations"`
	PostAggregations []*PostAggregation `json:"postAggregations,omitempty"`
	Dimensions       []string           `json:"dimensions,omitempty"`
	TimeGrain        TimeGrain          `json:"timeGrain,omitempty"`
	Nested           *MetricQueryPlan   `json:"nested,omitempty"`
}

// MarshalJSON renders the plan tree, outer level first.
func (p *MetricQueryPlan) MarshalJSON() ([]byte, error) {
	return json.Marshal(queryPlanJSON{
		Aggregations:     p.aggregations,
		PostAggregations: p.postAggregations,
		Dimensions:       p.dimensions,
		TimeGrain:        p.timeGrain,
		Nested:           p.nested,
	})
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
